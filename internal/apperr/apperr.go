// Package apperr provides the coded error taxonomy shared by the store,
// the session tracker and the reconciler.
//
// Codes follow the format {domain}.{error}. Callers match them with
// errors.Is against the exported sentinels; any CodedError carrying the
// same code matches, whatever its message or cause.
package apperr

import (
	"errors"
	"fmt"
)

const (
	// Store domain - embedded engine and image persistence
	CodeStoreUnavailable = "store.unavailable"   // Engine not initialized or blob store unreachable
	CodeStoreCorrupt     = "store.corrupt_image" // Persisted image could not be opened
	CodeStoreSaveFailed  = "store.save_failed"   // Image could not be written to the blob store
	CodeStoreQueryFailed = "store.query_failed"  // Engine-level query error
	CodeStoreNotFound    = "store.not_found"     // Row does not exist

	// Session domain - state machine preconditions
	CodeSessionAlreadyActive = "session.already_active"
	CodeSessionNotActive     = "session.not_active"
	CodeSessionNotPaused     = "session.not_paused"
	CodeApprovedImmutable    = "session.approved_immutable"
	CodeSessionDuplicate     = "session.duplicate_start"

	// Evidence and location collaborators
	CodeEvidenceRequired    = "evidence.required"
	CodeEvidenceUnavailable = "evidence.unavailable"
	CodeLocationUnavailable = "location.unavailable"

	// Sync domain
	CodeSyncNetwork     = "sync.network_failure"
	CodeSyncNotSignedIn = "sync.not_signed_in"

	CodeUnknown = "error.unknown"
)

// CodedError wraps an error with a stable code.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// Is matches any CodedError with the same code.
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	return ok && t.Code == e.Code
}

// New creates a CodedError without a cause.
func New(code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Wrap creates a CodedError around cause.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is.
var (
	ErrStoreUnavailable    = New(CodeStoreUnavailable, "local store unavailable")
	ErrCorruptImage        = New(CodeStoreCorrupt, "persisted database image is corrupt")
	ErrSaveFailed          = New(CodeStoreSaveFailed, "database image save failed")
	ErrQueryFailed         = New(CodeStoreQueryFailed, "query failed")
	ErrNotFound            = New(CodeStoreNotFound, "session not found")
	ErrSessionActive       = New(CodeSessionAlreadyActive, "a session is already in progress")
	ErrSessionNotActive    = New(CodeSessionNotActive, "no active session")
	ErrSessionNotPaused    = New(CodeSessionNotPaused, "session is not paused")
	ErrApprovedImmutable   = New(CodeApprovedImmutable, "approved sessions cannot be changed")
	ErrDuplicateStart      = New(CodeSessionDuplicate, "a session already started this minute, try again in a minute")
	ErrEvidenceRequired    = New(CodeEvidenceRequired, "photo evidence is required to time out")
	ErrEvidenceUnavailable = New(CodeEvidenceUnavailable, "photo evidence unavailable")
	ErrLocationUnavailable = New(CodeLocationUnavailable, "location unavailable")
	ErrSyncNetwork         = New(CodeSyncNetwork, "remote sync failed")
	ErrNotSignedIn         = New(CodeSyncNotSignedIn, "no signed-in user")
)

// Code extracts the code from err, CodeUnknown for foreign errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// Message extracts the human-readable message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// UserMessage maps an error onto the short texts shown to the user.
// Nothing here is fatal: every failure is a retry or a deferral.
func UserMessage(err error) string {
	switch Code(err) {
	case "":
		return ""
	case CodeStoreUnavailable, CodeStoreSaveFailed, CodeStoreQueryFailed, CodeStoreCorrupt:
		return "time-in/out failed, retry"
	case CodeSyncNetwork:
		return "sync deferred, will retry"
	case CodeSyncNotSignedIn:
		return "sync skipped: not signed in"
	default:
		return Message(err)
	}
}
