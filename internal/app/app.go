// Package app is the collaborator surface the CLI, the timer view and the
// daemon talk to. It wires the local store, the session tracker and the
// reconciler, and owns the background loops: autosave, periodic sync and
// connectivity-triggered sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/balkashynov/dtr/internal/db"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/reconcile"
	"github.com/balkashynov/dtr/internal/tracker"
)

// ErrSyncDisabled is returned by Sync when no remote backend is configured
var ErrSyncDisabled = errors.New("remote sync is not configured")

// Identity supplies the signed-in user id
type Identity = reconcile.Identity

// Syncer runs one sync pass
type Syncer interface {
	Sync(ctx context.Context, sessions []models.Session, settings map[string]string) (*reconcile.Result, error)
}

// Options tune the background behavior of Core
type Options struct {
	AutosaveInterval time.Duration
	SyncInterval     time.Duration
	SyncMinGap       time.Duration
	ProbeInterval    time.Duration
	Connectivity     Connectivity
	Clock            func() time.Time
}

const (
	DefaultAutosaveInterval = 5 * time.Minute
	DefaultSyncInterval     = 15 * time.Minute
	DefaultSyncMinGap       = 30 * time.Second
	DefaultProbeInterval    = 30 * time.Second

	closeWait = 15 * time.Second
)

// Core is the application facade
type Core struct {
	store   *db.Store
	tracker *tracker.Tracker
	syncer  Syncer
	conn    Connectivity
	log     *zap.Logger
	now     func() time.Time

	autosave      time.Duration
	syncInterval  time.Duration
	probeInterval time.Duration

	group   singleflight.Group
	limiter *rate.Limiter
	minGap  time.Duration
	pending sync.WaitGroup
}

// New creates a Core. syncer may be nil when sync is disabled.
func New(store *db.Store, tr *tracker.Tracker, syncer Syncer, log *zap.Logger, opts Options) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.SyncMinGap <= 0 {
		opts.SyncMinGap = DefaultSyncMinGap
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Connectivity == nil {
		opts.Connectivity = AlwaysOnline{}
	}

	return &Core{
		store:         store,
		tracker:       tr,
		syncer:        syncer,
		conn:          opts.Connectivity,
		log:           log,
		now:           opts.Clock,
		autosave:      opts.AutosaveInterval,
		syncInterval:  opts.SyncInterval,
		probeInterval: opts.ProbeInterval,
		limiter:       rate.NewLimiter(rate.Every(opts.SyncMinGap), 1),
		minGap:        opts.SyncMinGap,
	}
}

// Start initializes the store and purges expired archive entries
func (c *Core) Start(ctx context.Context) error {
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	if n, err := c.store.PurgeExpiredArchive(ctx); err != nil {
		c.log.Warn("startup purge failed", zap.Error(err))
	} else if n > 0 {
		c.log.Info("startup purge", zap.Int64("removed", n))
	}
	return nil
}

// Close waits briefly for background syncs, then closes the store
func (c *Core) Close() error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
		c.log.Warn("closing with a sync still running")
	}
	return c.store.Close()
}

// TimeIn starts a new session
func (c *Core) TimeIn(ctx context.Context) (*models.Session, error) {
	c.refresh(ctx)
	return c.tracker.TimeIn(ctx)
}

// Pause pauses the active session
func (c *Core) Pause(ctx context.Context) (*models.Session, error) {
	c.refresh(ctx)
	return c.tracker.Pause(ctx)
}

// Resume resumes the paused session
func (c *Core) Resume(ctx context.Context) (*models.Session, error) {
	c.refresh(ctx)
	return c.tracker.Resume(ctx)
}

// TimeOut completes the in-flight session and schedules a sync
func (c *Core) TimeOut(ctx context.Context, notes string, photo []byte) (*models.Session, error) {
	c.refresh(ctx)
	session, err := c.tracker.TimeOut(ctx, notes, photo)
	if err != nil || session == nil {
		return session, err
	}
	c.syncSoon(ctx)
	return session, nil
}

// State returns the in-flight session and its elapsed time
func (c *Core) State(ctx context.Context) (*tracker.State, error) {
	c.refresh(ctx)
	return c.tracker.State(ctx)
}

// ListSessions lists completed sessions, optionally for one yyyy-mm month
func (c *Core) ListSessions(ctx context.Context, month string, all bool) ([]models.Session, error) {
	c.refresh(ctx)
	return c.store.GetSessions(ctx, month, all)
}

// ListArchived lists archived sessions
func (c *Core) ListArchived(ctx context.Context) ([]models.Session, error) {
	c.refresh(ctx)
	return c.store.GetArchivedSessions(ctx)
}

// Archive soft-deletes a session
func (c *Core) Archive(ctx context.Context, id uint) error {
	c.refresh(ctx)
	return c.store.ArchiveSession(ctx, id)
}

// Recover restores an archived session
func (c *Core) Recover(ctx context.Context, id uint) error {
	c.refresh(ctx)
	return c.store.RecoverSession(ctx, id)
}

// Purge permanently deletes an archived session
func (c *Core) Purge(ctx context.Context, id uint) error {
	c.refresh(ctx)
	return c.store.PurgeSession(ctx, id)
}

// SetGoal changes the goal hours
func (c *Core) SetGoal(ctx context.Context, hours float64) error {
	if hours <= 0 {
		return fmt.Errorf("goal must be a positive number of hours")
	}
	c.refresh(ctx)
	if err := c.store.SetSetting(ctx, models.SettingGoalHours, fmt.Sprintf("%g", hours)); err != nil {
		return err
	}
	c.syncSoon(ctx)
	return nil
}

// ExportImage returns the raw database image for backups
func (c *Core) ExportImage(ctx context.Context) ([]byte, error) {
	c.refresh(ctx)
	return c.store.ExportRawImage(ctx)
}

// Reset clears all local data
func (c *Core) Reset(ctx context.Context) error {
	return c.store.Reset(ctx)
}

// Sync runs one sync pass and applies what it pulled back. Overlapping
// calls share the pass already in flight.
func (c *Core) Sync(ctx context.Context) (*reconcile.Result, error) {
	if c.syncer == nil {
		return nil, ErrSyncDisabled
	}

	v, err, shared := c.group.Do("sync", func() (any, error) {
		return c.syncOnce(ctx)
	})
	if shared {
		c.log.Debug("joined sync already in flight")
	}
	res, _ := v.(*reconcile.Result)
	return res, err
}

func (c *Core) syncOnce(ctx context.Context) (*reconcile.Result, error) {
	c.refresh(ctx)
	sessions, err := c.store.GetSessions(ctx, "", true)
	if err != nil {
		return nil, err
	}
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.syncer.Sync(ctx, sessions, settings)
	if err != nil {
		return res, err
	}
	if err := c.ApplyResult(ctx, res); err != nil {
		c.log.Warn("some sync results were not applied", zap.Error(err))
	}
	if res != nil && res.Success {
		if err := c.store.SetSetting(ctx, models.SettingLastSyncAt, models.FormatISO(c.now())); err != nil {
			c.log.Warn("record last sync failed", zap.Error(err))
		}
	}
	return res, nil
}

// ApplyResult writes remote approval decisions and photo URLs into the
// local store. It keeps going past individual failures.
func (c *Core) ApplyResult(ctx context.Context, res *reconcile.Result) error {
	if res == nil {
		return nil
	}

	var errs []error
	for _, u := range res.StatusUpdates {
		if err := c.store.ApplyApproval(ctx, u.ID, u.Status); err != nil {
			errs = append(errs, fmt.Errorf("apply %s status: %w", u.Key, err))
		}
	}
	for _, u := range res.PhotoUpdates {
		if err := c.store.SetPhotoURL(ctx, u.ID, u.URL); err != nil {
			errs = append(errs, fmt.Errorf("apply %s photo: %w", u.Key, err))
		}
	}
	return errors.Join(errs...)
}

// syncSoon starts a background sync unless one ran within the minimum gap.
// The limiter covers this process; last_sync_at covers syncs by other
// processes sharing the image, such as the daemon or an earlier CLI run.
func (c *Core) syncSoon(ctx context.Context) {
	if c.syncer == nil || c.syncedWithin(ctx, c.minGap) || !c.limiter.Allow() {
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeWait)
		defer cancel()
		if _, err := c.Sync(ctx); err != nil {
			c.log.Warn("sync deferred, will retry", zap.Error(err))
		}
	}()
}

func (c *Core) syncedWithin(ctx context.Context, gap time.Duration) bool {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return false
	}
	last, err := models.ParseISO(settings[models.SettingLastSyncAt])
	if err != nil {
		return false
	}
	return c.now().Sub(last) < gap
}

// refresh picks up saves made by other processes sharing the image.
// Failures leave the current engine in place.
func (c *Core) refresh(ctx context.Context) {
	if err := c.store.Refresh(ctx); err != nil {
		c.log.Warn("refresh from stored image failed", zap.Error(err))
	}
}
