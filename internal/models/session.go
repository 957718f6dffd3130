package models

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a work session
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// InFlight reports whether the status belongs to the single open session
func (s Status) InFlight() bool {
	return s == StatusActive || s == StatusPaused
}

// ApprovalStatus is decided by the supervisor on the remote side
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether a is one of the known approval states
func (a ApprovalStatus) Valid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// Decided reports whether a supervisor already acted on the session
func (a ApprovalStatus) Decided() bool {
	return a == ApprovalApproved || a == ApprovalRejected
}

// ISOLayout is the canonical timestamp format stored in iso_start, paused_at and deleted_at.
// Fixed-width UTC so that stored values compare lexicographically.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// DateLayout is the normalized calendar date format
const DateLayout = "2006-01-02"

// FormatISO renders t in ISOLayout
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO parses a stored timestamp. Offsets other than Z are accepted.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}

// Session represents one work period from time-in to time-out
type Session struct {
	ID             uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Date           string         `gorm:"column:date" json:"date"`
	TimeIn         string         `gorm:"column:time_in" json:"time_in"`
	TimeOut        *string        `gorm:"column:time_out" json:"time_out,omitempty"`
	Duration       *float64       `gorm:"column:duration" json:"duration,omitempty"` // hours, frozen at time-out
	Status         Status         `gorm:"column:status" json:"status"`
	IsoStart       string         `gorm:"column:iso_start" json:"iso_start"`
	PausedAt       *string        `gorm:"column:paused_at" json:"paused_at,omitempty"`
	TotalPausedMs  int64          `gorm:"column:total_paused_ms;default:0" json:"total_paused_ms"`
	Notes          *string        `gorm:"column:notes" json:"notes,omitempty"`
	DeletedAt      *string        `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
	LocationIn     *string        `gorm:"column:location_in" json:"location_in,omitempty"`
	LocationOut    *string        `gorm:"column:location_out" json:"location_out,omitempty"`
	PhotoURL       *string        `gorm:"column:photo_url" json:"photo_url,omitempty"`
	ApprovalStatus ApprovalStatus `gorm:"column:approval_status;default:pending" json:"approval_status"`
}

// TableName keeps the table name used by existing database images
func (Session) TableName() string {
	return "logs"
}

// Hours returns the frozen duration, zero while the session is in flight
func (s *Session) Hours() float64 {
	if s.Duration == nil {
		return 0
	}
	return *s.Duration
}

// Archived reports whether the session was soft-deleted
func (s *Session) Archived() bool {
	return s.DeletedAt != nil && *s.DeletedAt != ""
}

// Approval returns the approval status, treating an empty column as pending
func (s *Session) Approval() ApprovalStatus {
	if s.ApprovalStatus == "" {
		return ApprovalPending
	}
	return s.ApprovalStatus
}

// Key returns the sync key correlating this session with its remote copy
func (s *Session) Key() string {
	return SyncKey(s.Date, s.TimeIn)
}

// SessionPatch is a partial session update. Nil fields are left untouched.
type SessionPatch struct {
	TimeOut        *string
	Duration       *float64
	Status         *Status
	PausedAt       *string
	ClearPausedAt  bool
	TotalPausedMs  *int64
	Notes          *string
	LocationOut    *string
	PhotoURL       *string
	ApprovalStatus *ApprovalStatus
}

// Empty reports whether the patch would not change anything
func (p SessionPatch) Empty() bool {
	return p.TimeOut == nil && p.Duration == nil && p.Status == nil &&
		p.PausedAt == nil && !p.ClearPausedAt && p.TotalPausedMs == nil &&
		p.Notes == nil && p.LocationOut == nil && p.PhotoURL == nil &&
		p.ApprovalStatus == nil
}

// Columns maps the set fields to their column names
func (p SessionPatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.TimeOut != nil {
		cols["time_out"] = *p.TimeOut
	}
	if p.Duration != nil {
		cols["duration"] = *p.Duration
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ClearPausedAt {
		cols["paused_at"] = nil
	} else if p.PausedAt != nil {
		cols["paused_at"] = *p.PausedAt
	}
	if p.TotalPausedMs != nil {
		cols["total_paused_ms"] = *p.TotalPausedMs
	}
	if p.Notes != nil {
		cols["notes"] = *p.Notes
	}
	if p.LocationOut != nil {
		cols["location_out"] = *p.LocationOut
	}
	if p.PhotoURL != nil {
		cols["photo_url"] = *p.PhotoURL
	}
	if p.ApprovalStatus != nil {
		cols["approval_status"] = string(*p.ApprovalStatus)
	}
	return cols
}

// TouchesLockedFields reports whether the patch changes anything beyond
// the fields the remote side owns.
func (p SessionPatch) TouchesLockedFields() bool {
	q := p
	q.PhotoURL = nil
	q.ApprovalStatus = nil
	return !q.Empty()
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// StringValue dereferences s, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
