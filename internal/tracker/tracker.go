package tracker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/evidence"
	"github.com/balkashynov/dtr/internal/location"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
)

// Store is the part of the local store the tracker drives
type Store interface {
	AddSession(ctx context.Context, date, timeIn, isoStart, location string) (*models.Session, error)
	GetActiveOrPausedSession(ctx context.Context) (*models.Session, error)
	GetSession(ctx context.Context, id uint) (*models.Session, error)
	UpdateSession(ctx context.Context, id uint, patch models.SessionPatch) error
}

// Encoder turns a captured photo into an uploadable payload
type Encoder interface {
	Encode(raw []byte) (*evidence.Payload, error)
}

// Outbox queues encoded photos by sync key
type Outbox interface {
	Put(ctx context.Context, key string, p *evidence.Payload) error
}

// Tracker moves sessions through active, paused and completed
type Tracker struct {
	store           Store
	location        location.Provider
	encoder         Encoder
	outbox          Outbox
	requireEvidence bool
	now             func() time.Time
	log             *zap.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// WithLocation sets the provider consulted at time-in and time-out
func WithLocation(p location.Provider) Option {
	return func(t *Tracker) { t.location = p }
}

// WithEvidence sets where time-out photos are encoded and queued
func WithEvidence(enc Encoder, outbox Outbox) Option {
	return func(t *Tracker) {
		t.encoder = enc
		t.outbox = outbox
	}
}

// RequireEvidence refuses time-out without a photo
func RequireEvidence(required bool) Option {
	return func(t *Tracker) { t.requireEvidence = required }
}

// New creates a Tracker over store
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State is the in-flight session, if any, and its elapsed time
type State struct {
	Session *models.Session
	Elapsed time.Duration
}

// Idle reports whether no session is in flight
func (s *State) Idle() bool {
	return s.Session == nil
}

// State returns the current in-flight session
func (t *Tracker) State(ctx context.Context) (*State, error) {
	active, err := t.store.GetActiveOrPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	return &State{Session: active, Elapsed: SessionElapsed(t.now(), active)}, nil
}

// TimeIn opens a new active session stamped with the current time
func (t *Tracker) TimeIn(ctx context.Context) (*models.Session, error) {
	active, err := t.store.GetActiveOrPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.ErrSessionActive
	}

	now := t.now()
	loc := t.locate(ctx)

	session, err := t.store.AddSession(ctx, parser.FormatDate(now), parser.FormatClock(now), models.FormatISO(now), loc)
	if err != nil {
		t.log.Error("time in failed", zap.Error(err))
		return nil, err
	}

	t.log.Info("timed in", zap.Uint("id", session.ID), zap.String("date", session.Date), zap.String("time_in", session.TimeIn))
	return session, nil
}

// Pause stamps paused_at on the active session
func (t *Tracker) Pause(ctx context.Context) (*models.Session, error) {
	active, err := t.store.GetActiveOrPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil || active.Status != models.StatusActive {
		return nil, apperr.ErrSessionNotActive
	}

	status := models.StatusPaused
	pausedAt := models.FormatISO(t.now())
	if err := t.store.UpdateSession(ctx, active.ID, models.SessionPatch{
		Status:   &status,
		PausedAt: &pausedAt,
	}); err != nil {
		t.log.Error("pause failed", zap.Uint("id", active.ID), zap.Error(err))
		return nil, err
	}

	t.log.Info("paused", zap.Uint("id", active.ID))
	return t.store.GetSession(ctx, active.ID)
}

// Resume folds the open pause into total_paused_ms and reactivates the session
func (t *Tracker) Resume(ctx context.Context) (*models.Session, error) {
	active, err := t.store.GetActiveOrPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil || active.Status != models.StatusPaused {
		return nil, apperr.ErrSessionNotPaused
	}

	status := models.StatusActive
	total := active.TotalPausedMs + t.openPauseMs(active)
	if err := t.store.UpdateSession(ctx, active.ID, models.SessionPatch{
		Status:        &status,
		ClearPausedAt: true,
		TotalPausedMs: &total,
	}); err != nil {
		t.log.Error("resume failed", zap.Uint("id", active.ID), zap.Error(err))
		return nil, err
	}

	t.log.Info("resumed", zap.Uint("id", active.ID), zap.Int64("total_paused_ms", total))
	return t.store.GetSession(ctx, active.ID)
}

// TimeOut completes the in-flight session, freezing its duration. With no
// session in flight it does nothing and returns nil. The photo, when given,
// is queued for the next sync under the session's sync key.
func (t *Tracker) TimeOut(ctx context.Context, notes string, photo []byte) (*models.Session, error) {
	active, err := t.store.GetActiveOrPausedSession(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}

	payload, err := t.encodePhoto(photo)
	if err != nil {
		return nil, err
	}

	now := t.now()
	var pausedAt *string
	if active.Status == models.StatusPaused {
		pausedAt = active.PausedAt
	}
	hours := Hours(now, active.IsoStart, active.TotalPausedMs, pausedAt)

	if payload != nil {
		if err := t.queuePhoto(ctx, active.Key(), payload); err != nil {
			return nil, err
		}
	}

	status := models.StatusCompleted
	approval := models.ApprovalPending
	patch := models.SessionPatch{
		TimeOut:        models.Ptr(parser.FormatClock(now)),
		Duration:       &hours,
		Status:         &status,
		ApprovalStatus: &approval,
	}
	if active.Status == models.StatusPaused {
		total := active.TotalPausedMs + t.openPauseMs(active)
		patch.TotalPausedMs = &total
		patch.ClearPausedAt = true
	}
	if notes != "" {
		patch.Notes = &notes
	}
	if loc := t.locate(ctx); loc != "" {
		patch.LocationOut = &loc
	}

	if err := t.store.UpdateSession(ctx, active.ID, patch); err != nil {
		t.log.Error("time out failed", zap.Uint("id", active.ID), zap.Error(err))
		return nil, err
	}

	t.log.Info("timed out", zap.Uint("id", active.ID), zap.Float64("hours", hours), zap.Bool("photo", payload != nil))
	return t.store.GetSession(ctx, active.ID)
}

func (t *Tracker) openPauseMs(s *models.Session) int64 {
	if s.PausedAt == nil {
		return 0
	}
	p, err := models.ParseISO(*s.PausedAt)
	if err != nil {
		return 0
	}
	ms := t.now().Sub(p).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

func (t *Tracker) encodePhoto(photo []byte) (*evidence.Payload, error) {
	if len(photo) == 0 {
		if t.requireEvidence {
			return nil, apperr.ErrEvidenceRequired
		}
		return nil, nil
	}
	if t.encoder == nil || t.outbox == nil {
		if t.requireEvidence {
			return nil, apperr.ErrEvidenceUnavailable
		}
		t.log.Warn("photo dropped: no evidence outbox configured")
		return nil, nil
	}

	payload, err := t.encoder.Encode(photo)
	if err != nil {
		if t.requireEvidence {
			return nil, err
		}
		t.log.Warn("photo dropped", zap.Error(err))
		return nil, nil
	}
	return payload, nil
}

func (t *Tracker) queuePhoto(ctx context.Context, key string, p *evidence.Payload) error {
	err := t.outbox.Put(ctx, key, p)
	if err == nil {
		return nil
	}
	if t.requireEvidence {
		return apperr.Wrap(apperr.CodeEvidenceUnavailable, "queue photo", err)
	}
	t.log.Warn("photo dropped: outbox unavailable", zap.String("key", key), zap.Error(err))
	return nil
}

// locate returns the current position or "" when it cannot be determined
func (t *Tracker) locate(ctx context.Context) string {
	if t.location == nil {
		return ""
	}
	loc, err := t.location.Current(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrLocationUnavailable) {
			t.log.Warn("location lookup failed", zap.Error(err))
		}
		return ""
	}
	return loc
}
