package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balkashynov/dtr/internal/app"
	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/blob"
	"github.com/balkashynov/dtr/internal/config"
	"github.com/balkashynov/dtr/internal/db"
	"github.com/balkashynov/dtr/internal/evidence"
	"github.com/balkashynov/dtr/internal/location"
	"github.com/balkashynov/dtr/internal/logger"
	"github.com/balkashynov/dtr/internal/reconcile"
	"github.com/balkashynov/dtr/internal/remote"
	"github.com/balkashynov/dtr/internal/tracker"
)

// env is everything a command needs, built once per invocation
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	core    *app.Core
	remote  *remote.Store
	closers []io.Closer
}

func (e *env) Close() {
	if e.core != nil {
		if err := e.core.Close(); err != nil {
			e.log.Warn("close store", zap.Error(err))
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i].Close()
	}
	e.log.Sync()
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) openBlobs() (blob.Store, error) {
	if e.cfg.Store.Backend == "redis" {
		r, err := blob.NewRedis(e.cfg.Redis.Addr, e.cfg.Redis.Password, e.cfg.Redis.DB, e.log)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, r)
		return r, nil
	}
	return blob.NewFile(filepath.Join(e.cfg.DataDir, "blobs"))
}

func (e *env) openRemote() (*remote.Store, error) {
	if e.remote != nil {
		return e.remote, nil
	}
	if !e.cfg.Remote.Enabled() {
		return nil, app.ErrSyncDisabled
	}
	r, err := remote.Open(e.cfg.Remote.Driver, e.cfg.Remote.DSN, e.log)
	if err != nil {
		return nil, err
	}
	e.remote = r
	e.closers = append(e.closers, r)
	return r, nil
}

func (e *env) uploader(r *remote.Store) remote.Uploader {
	if e.cfg.Remote.Uploader == "http" {
		return remote.NewHTTPUploader(e.cfg.Remote.UploadURL, nil)
	}
	return remote.NewDBUploader(r, e.cfg.Remote.UploadURL)
}

// openCore wires store, tracker and, when configured, the reconciler
func (e *env) openCore(ctx context.Context) error {
	cfg := e.cfg
	blobs, err := e.openBlobs()
	if err != nil {
		return err
	}

	opts := []db.Option{
		db.WithLogger(e.log),
		db.WithImageKey(cfg.Store.Key),
		db.WithRetention(cfg.Store.Retention),
		db.WithListLimit(cfg.Store.ListLimit),
	}
	if cfg.Store.ScratchDir != "" {
		opts = append(opts, db.WithScratchDir(cfg.Store.ScratchDir))
	}
	if cfg.Migrations.RewriteYearFrom != 0 {
		opts = append(opts, db.WithYearRewrite(cfg.Migrations.RewriteYearFrom, cfg.Migrations.RewriteYearTo))
	}
	store := db.New(blobs, opts...)

	outbox := evidence.NewOutbox(blobs)
	tr := tracker.New(store,
		tracker.WithLogger(e.log),
		tracker.WithLocation(location.WithTimeout(location.Static(cfg.Location.Fixed), cfg.Location.Timeout, e.log)),
		tracker.WithEvidence(evidence.NewEncoder(cfg.Evidence.MaxDimension, cfg.Evidence.JPEGQuality), outbox),
		tracker.RequireEvidence(cfg.Evidence.Required),
	)

	var syncer app.Syncer
	if cfg.Remote.Enabled() {
		r, err := e.openRemote()
		if err != nil {
			// Offline-first: local commands keep working without the backend
			e.log.Warn("remote store unavailable, sync disabled for this run", zap.Error(err))
		} else {
			syncer = reconcile.New(r, e.uploader(r), outbox, reconcile.StaticIdentity(cfg.User.UID), reconcile.Options{
				InlineEvidence: cfg.Sync.InlineEvidence,
				InlineMaxBytes: cfg.Sync.InlineMaxBytes,
				UploadTimeout:  cfg.Sync.UploadTimeout,
			}, e.log)
		}
	}

	var conn app.Connectivity
	if cfg.Sync.ProbeAddr != "" {
		conn = app.DialProbe{Addr: cfg.Sync.ProbeAddr}
	}

	e.core = app.New(store, tr, syncer, e.log, app.Options{
		AutosaveInterval: cfg.Store.AutosaveInterval,
		SyncInterval:     cfg.Sync.Interval,
		SyncMinGap:       cfg.Sync.MinGap,
		Connectivity:     conn,
	})
	return e.core.Start(ctx)
}

type runFunc func(cmd *cobra.Command, args []string, e *env) error

// withCore loads config and opens the local store before running fn
func withCore(fn runFunc) func(*cobra.Command, []string) {
	return run(fn, true)
}

// withEnv loads config only; fn opens what it needs
func withEnv(fn runFunc) func(*cobra.Command, []string) {
	return run(fn, false)
}

func run(fn runFunc, core bool) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		e, err := loadEnv()
		if err != nil {
			fail(cmd, err)
			return
		}
		defer e.Close()

		if core {
			if err := e.openCore(cmd.Context()); err != nil {
				e.log.Error("open local store", zap.Error(err))
				fail(cmd, err)
				return
			}
		}
		if err := fn(cmd, args, e); err != nil {
			e.log.Debug("command failed", zap.String("command", cmd.Name()), zap.Error(err))
			fail(cmd, err)
		}
	}
}

// fail prints the user-facing form of err and marks the process as failed
func fail(cmd *cobra.Command, err error) {
	cmd.PrintErrf("Error: %s\n", apperr.UserMessage(err))
	exitCode = 1
}

var exitCode int

// ExitCode is non-zero after a command reported an error
func ExitCode() int {
	return exitCode
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
