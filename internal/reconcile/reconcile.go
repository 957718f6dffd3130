// Package reconcile pushes completed local sessions to the remote store and
// pulls back the fields the remote side owns: approval status and the
// durable photo URL.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/blob"
	"github.com/balkashynov/dtr/internal/db"
	"github.com/balkashynov/dtr/internal/evidence"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/remote"
)

// Remote is the part of the remote store the reconciler writes
type Remote interface {
	UpsertSummary(ctx context.Context, uid string, sum remote.Summary) error
	GetLog(ctx context.Context, uid, key string) (*remote.Log, error)
	UpsertLog(ctx context.Context, l *remote.Log) error
}

// Outbox holds photos waiting for upload
type Outbox interface {
	Get(ctx context.Context, key string) (*evidence.Payload, error)
	Delete(ctx context.Context, key string) error
}

// Identity supplies the signed-in user id, "" when signed out
type Identity interface {
	UID() string
}

// StaticIdentity is a fixed user id
type StaticIdentity string

func (s StaticIdentity) UID() string { return string(s) }

// Options tune evidence handling
type Options struct {
	// InlineEvidence skips uploads and embeds photos in the record
	InlineEvidence bool
	// InlineMaxBytes caps the size of an embedded data: URL
	InlineMaxBytes int
	// UploadTimeout bounds each photo upload
	UploadTimeout time.Duration
}

const (
	DefaultInlineMaxBytes = 700 * 1024
	DefaultUploadTimeout  = 10 * time.Second
)

// StatusUpdate is a remote approval decision to apply locally
type StatusUpdate struct {
	ID     uint                  `json:"id"`
	Key    string                `json:"key"`
	Status models.ApprovalStatus `json:"status"`
}

// PhotoUpdate is a durable photo URL to record locally
type PhotoUpdate struct {
	ID  uint   `json:"id"`
	Key string `json:"key"`
	URL string `json:"url"`
}

// Result reports one sync pass
type Result struct {
	Success       bool           `json:"success"`
	Pushed        int            `json:"pushed"`
	StatusUpdates []StatusUpdate `json:"status_updates"`
	PhotoUpdates  []PhotoUpdate  `json:"photo_updates"`
	Deferred      []string       `json:"deferred,omitempty"` // keys whose photo stays queued
	Failed        []string       `json:"failed,omitempty"`   // keys that were not pushed
}

// Reconciler runs sync passes. It holds no session state between passes.
type Reconciler struct {
	remote   Remote
	uploader remote.Uploader
	outbox   Outbox
	identity Identity
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Reconciler. uploader and outbox may be nil; photos are then
// embedded inline when small enough.
func New(r Remote, uploader remote.Uploader, outbox Outbox, identity Identity, opts Options, log *zap.Logger) *Reconciler {
	if opts.InlineMaxBytes <= 0 {
		opts.InlineMaxBytes = DefaultInlineMaxBytes
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		remote:   r,
		uploader: uploader,
		outbox:   outbox,
		identity: identity,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Sync pushes the summary and then each session in order. A summary failure
// aborts the pass; a session failure is recorded in Failed and the pass
// continues with the next one.
func (r *Reconciler) Sync(ctx context.Context, sessions []models.Session, settings map[string]string) (*Result, error) {
	uid := ""
	if r.identity != nil {
		uid = r.identity.UID()
	}
	if uid == "" {
		return &Result{}, apperr.ErrNotSignedIn
	}

	res := &Result{
		StatusUpdates: make([]StatusUpdate, 0),
		PhotoUpdates:  make([]PhotoUpdate, 0),
	}

	var total float64
	for i := range sessions {
		if syncable(&sessions[i]) {
			total += sessions[i].Hours()
		}
	}

	sum := remote.Summary{
		TotalRendered: total,
		GoalHours:     db.ParseGoalHours(settings, r.log),
		LastSync:      r.now(),
	}
	if err := r.remote.UpsertSummary(ctx, uid, sum); err != nil {
		r.log.Error("sync failed: summary", zap.String("uid", uid), zap.Error(err))
		return res, apperr.Wrap(apperr.CodeSyncNetwork, "push summary", err)
	}

	for i := range sessions {
		s := &sessions[i]
		if !syncable(s) {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, s.Key())
			continue
		}
		if err := r.pushSession(ctx, uid, s, res); err != nil {
			r.log.Error("sync session failed", zap.String("key", s.Key()), zap.Uint("id", s.ID), zap.Error(err))
			res.Failed = append(res.Failed, s.Key())
			continue
		}
		res.Pushed++
	}

	res.Success = true
	r.log.Info("sync completed",
		zap.Int("pushed", res.Pushed),
		zap.Int("status_updates", len(res.StatusUpdates)),
		zap.Int("photo_updates", len(res.PhotoUpdates)),
		zap.Int("deferred", len(res.Deferred)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

func syncable(s *models.Session) bool {
	return s.Status == models.StatusCompleted && !s.Archived()
}

func (r *Reconciler) pushSession(ctx context.Context, uid string, s *models.Session, res *Result) error {
	key := s.Key()

	existing, err := r.remote.GetLog(ctx, uid, key)
	if err != nil {
		return err
	}

	var photo evidenceOutcome
	if existing != nil && evidence.IsDurableURL(existing.PhotoURL) && !evidence.IsDurableURL(models.StringValue(s.PhotoURL)) {
		// uploaded by an earlier pass whose local update was lost
		photo = evidenceOutcome{
			url:      existing.PhotoURL,
			uploaded: true,
			update:   &PhotoUpdate{ID: s.ID, Key: key, URL: existing.PhotoURL},
		}
	} else {
		photo = r.resolveEvidence(ctx, uid, key, s)
		if photo.url == "" && existing != nil {
			photo.url = existing.PhotoURL
		}
	}
	if photo.deferred {
		res.Deferred = append(res.Deferred, key)
	}

	record := remote.NewLog(uid, s, photo.url, r.now())
	if existing != nil {
		remoteStatus := existing.Approval()
		if remoteStatus != models.ApprovalPending && remoteStatus != s.Approval() {
			record.ApprovalStatus = string(remoteStatus)
			res.StatusUpdates = append(res.StatusUpdates, StatusUpdate{ID: s.ID, Key: key, Status: remoteStatus})
		}
	}

	if err := r.remote.UpsertLog(ctx, record); err != nil {
		return err
	}

	if photo.uploaded && r.outbox != nil {
		if err := r.outbox.Delete(ctx, key); err != nil {
			r.log.Warn("outbox cleanup failed", zap.String("key", key), zap.Error(err))
		}
	}
	if photo.update != nil {
		res.PhotoUpdates = append(res.PhotoUpdates, *photo.update)
	}
	return nil
}

type evidenceOutcome struct {
	url      string
	uploaded bool // outbox entry can be dropped
	deferred bool // photo exists but is not linked yet
	update   *PhotoUpdate
}

func (r *Reconciler) resolveEvidence(ctx context.Context, uid, key string, s *models.Session) evidenceOutcome {
	local := models.StringValue(s.PhotoURL)
	if evidence.IsDurableURL(local) {
		return evidenceOutcome{url: local}
	}

	payload := r.queued(ctx, key)
	if payload == nil && evidence.IsDataURL(local) {
		p, err := evidence.ParseDataURL(local)
		if err != nil {
			r.log.Warn("unreadable local photo", zap.String("key", key), zap.Error(err))
			return evidenceOutcome{}
		}
		payload = p
	}
	if payload == nil {
		return evidenceOutcome{}
	}

	if r.opts.InlineEvidence || r.uploader == nil {
		return r.inline(key, payload)
	}

	upCtx, cancel := context.WithTimeout(ctx, r.opts.UploadTimeout)
	defer cancel()

	url, err := r.uploader.Upload(upCtx, remote.EvidencePath(uid, key), payload)
	if errors.Is(err, remote.ErrTransportRestricted) {
		r.log.Info("upload restricted, embedding photo inline", zap.String("key", key))
		return r.inline(key, payload)
	}
	if err != nil {
		r.log.Warn("photo upload deferred", zap.String("key", key), zap.Error(err))
		return evidenceOutcome{deferred: true}
	}

	return evidenceOutcome{
		url:      url,
		uploaded: true,
		update:   &PhotoUpdate{ID: s.ID, Key: key, URL: url},
	}
}

func (r *Reconciler) queued(ctx context.Context, key string) *evidence.Payload {
	if r.outbox == nil {
		return nil
	}
	p, err := r.outbox.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			r.log.Warn("outbox read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	return p
}

// inline embeds the photo when it fits. The outbox entry is kept so a later
// pass with a working upload path can replace the inline copy.
func (r *Reconciler) inline(key string, p *evidence.Payload) evidenceOutcome {
	dataURL := p.DataURL()
	if len(dataURL) > r.opts.InlineMaxBytes {
		r.log.Warn("photo too large to embed, deferred",
			zap.String("key", key), zap.Int("bytes", len(dataURL)), zap.Int("limit", r.opts.InlineMaxBytes))
		return evidenceOutcome{deferred: true}
	}
	return evidenceOutcome{url: dataURL, deferred: true}
}
