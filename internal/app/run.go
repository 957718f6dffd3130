package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// Run drives the background loops until ctx is done: autosave, periodic
// sync with exponential backoff after failures, and a sync whenever
// connectivity comes back. Autosave only writes unsaved changes; otherwise
// it reloads what other processes saved.
func (c *Core) Run(ctx context.Context) error {
	autosave := time.NewTicker(c.autosave)
	defer autosave.Stop()

	probe := time.NewTicker(c.probeInterval)
	defer probe.Stop()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 30 * time.Second
	retry.MaxInterval = c.syncInterval
	retry.MaxElapsedTime = 0 // keep retrying

	syncTimer := time.NewTimer(c.syncInterval)
	defer syncTimer.Stop()
	if c.syncer != nil {
		resetTimer(syncTimer, 0)
	} else {
		syncTimer.Stop()
	}

	online := c.conn.Online(ctx)
	c.log.Info("background loop started",
		zap.Duration("autosave", c.autosave),
		zap.Duration("sync_interval", c.syncInterval),
		zap.Bool("sync_enabled", c.syncer != nil),
		zap.Bool("online", online),
	)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("background loop stopping")
			if err := c.store.Flush(context.Background()); err != nil {
				c.log.Warn("final save failed", zap.Error(err))
			}
			return nil

		case <-autosave.C:
			c.refresh(ctx)
			if err := c.store.Flush(ctx); err != nil {
				c.log.Warn("autosave failed", zap.Error(err))
			}

		case <-probe.C:
			now := c.conn.Online(ctx)
			if now && !online && c.syncer != nil {
				c.log.Info("connectivity restored, syncing")
				resetTimer(syncTimer, 0)
			}
			online = now

		case <-syncTimer.C:
			if !online {
				resetTimer(syncTimer, c.syncInterval)
				continue
			}
			if _, err := c.Sync(ctx); err != nil {
				wait := retry.NextBackOff()
				c.log.Warn("sync deferred, will retry", zap.Duration("in", wait), zap.Error(err))
				resetTimer(syncTimer, wait)
				continue
			}
			retry.Reset()
			resetTimer(syncTimer, c.syncInterval)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
