package db

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/blob"
)

const (
	// DefaultImageKey is the versioned blob key holding the database image.
	// Bump it on incompatible schema changes.
	DefaultImageKey = "dtr_database_v3"

	// DefaultRetention is how long archived sessions are kept before purge
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultListLimit caps GetSessions unless includeAll is set
	DefaultListLimit = 50

	memoryDSN = ":memory:"
)

// Store is the local session store. It owns one embedded engine whose
// image is written through to a blob store after every mutation.
//
// The engine runs on a scratch file seeded from the image. Several processes
// may share one image key: Refresh reloads the engine when another process
// saved since our last load or save. Two processes saving unrelated changes
// between refreshes still overwrite each other (last save wins).
type Store struct {
	mu sync.Mutex

	blobs       blob.Store
	log         *zap.Logger
	key         string
	scratchBase string
	retention   time.Duration
	listLimit   int
	now         func() time.Time
	yearRewrite *YearRewrite

	db      *gorm.DB
	scratch string            // engine directory owned by the store, "" for in-memory
	dirty   bool              // last write-through save failed
	loaded  [sha256.Size]byte // digest of the image last loaded or saved
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithImageKey overrides the blob key of the database image
func WithImageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithScratchDir sets the preferred directory for the engine's working file
func WithScratchDir(dir string) Option {
	return func(s *Store) { s.scratchBase = dir }
}

// WithRetention sets the archive retention window
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithListLimit sets the default cap of GetSessions
func WithListLimit(n int) Option {
	return func(s *Store) { s.listLimit = n }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithYearRewrite enables the one-time year rewrite migration
func WithYearRewrite(from, to int) Option {
	return func(s *Store) { s.yearRewrite = &YearRewrite{From: from, To: to} }
}

// New creates a Store persisting into blobs. Call Init before use.
func New(blobs blob.Store, opts ...Option) *Store {
	s := &Store{
		blobs:     blobs,
		log:       zap.NewNop(),
		key:       DefaultImageKey,
		retention: DefaultRetention,
		listLimit: DefaultListLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted image, or creates a fresh schema when there is
// none or it cannot be opened. A second call is a no-op.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	image, err := s.blobs.Get(ctx, s.key)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		s.log.Info("no existing database image, creating a new one", zap.String("key", s.key))
		image = nil
	case err != nil:
		s.log.Error("read database image failed", zap.String("key", s.key), zap.Error(err))
		return apperr.Wrap(apperr.CodeStoreUnavailable, "read database image", err)
	}

	gdb, scratch, err := s.openEngine(image)
	if errors.Is(err, apperr.ErrCorruptImage) {
		s.log.Error("corrupted database image, starting fresh", zap.String("key", s.key), zap.Error(err))
		gdb, scratch, err = s.openEngine(nil)
	}
	if err != nil {
		s.log.Error("open engine failed", zap.Error(err))
		return apperr.Wrap(apperr.CodeStoreUnavailable, "open engine", err)
	}

	if err := migrate(gdb, s.log, s.now(), s.yearRewrite); err != nil {
		closeEngine(gdb, scratch)
		s.log.Error("migrate failed", zap.Error(err))
		return apperr.Wrap(apperr.CodeStoreUnavailable, "migrate schema", err)
	}

	s.db = gdb
	s.scratch = scratch
	s.loaded = sha256.Sum256(image)
	s.persist(ctx)

	s.log.Info("local store ready", zap.String("key", s.key), zap.Bool("in_memory", scratch == ""))
	return nil
}

// Ready reports whether Init succeeded
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

// scratchCandidates lists the directories tried for the engine file
func (s *Store) scratchCandidates() []string {
	var dirs []string
	if s.scratchBase != "" {
		dirs = append(dirs, s.scratchBase)
	}
	return append(dirs, os.TempDir())
}

// openEngine seeds a scratch file with image and opens it. When no scratch
// location works and there is nothing to restore, it falls back to an
// in-memory engine.
func (s *Store) openEngine(image []byte) (*gorm.DB, string, error) {
	for _, base := range s.scratchCandidates() {
		if err := os.MkdirAll(base, 0700); err != nil {
			s.log.Warn("scratch location unavailable", zap.String("dir", base), zap.Error(err))
			continue
		}
		dir, err := os.MkdirTemp(base, "dtr-engine-")
		if err != nil {
			s.log.Warn("scratch location unavailable", zap.String("dir", base), zap.Error(err))
			continue
		}

		path := filepath.Join(dir, "engine.db")
		if len(image) > 0 {
			if err := os.WriteFile(path, image, 0600); err != nil {
				os.RemoveAll(dir)
				s.log.Warn("write scratch image failed", zap.String("dir", dir), zap.Error(err))
				continue
			}
		}

		gdb, err := openGorm(path)
		if err != nil {
			os.RemoveAll(dir)
			if len(image) > 0 {
				return nil, "", apperr.Wrap(apperr.CodeStoreCorrupt, "open database image", err)
			}
			s.log.Warn("open scratch engine failed", zap.String("dir", dir), zap.Error(err))
			continue
		}

		if len(image) > 0 {
			if err := quickCheck(gdb); err != nil {
				closeEngine(gdb, dir)
				return nil, "", apperr.Wrap(apperr.CodeStoreCorrupt, "validate database image", err)
			}
		}
		return gdb, dir, nil
	}

	if len(image) > 0 {
		return nil, "", fmt.Errorf("no scratch location to restore the database image")
	}

	s.log.Warn("no scratch location available, falling back to in-memory engine")
	gdb, err := openGorm(memoryDSN)
	if err != nil {
		return nil, "", err
	}
	return gdb, "", nil
}

func openGorm(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Quiet by default
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// One connection: single writer, and an in-memory engine must not be
	// split across pooled connections.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return gdb, nil
}

func quickCheck(gdb *gorm.DB) error {
	var result string
	if err := gdb.Raw("PRAGMA quick_check").Row().Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

func closeEngine(gdb *gorm.DB, scratch string) {
	if gdb != nil {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if scratch != "" {
		os.RemoveAll(scratch)
	}
}

// handle returns the engine or ErrStoreUnavailable. Callers hold s.mu.
func (s *Store) handle() (*gorm.DB, error) {
	if s.db == nil {
		return nil, apperr.ErrStoreUnavailable
	}
	return s.db, nil
}

// exportImage serializes the whole database. Callers hold s.mu.
func (s *Store) exportImage(ctx context.Context) ([]byte, error) {
	gdb, err := s.handle()
	if err != nil {
		return nil, err
	}

	base := s.scratch
	if base == "" {
		base = os.TempDir()
	}
	dir, err := os.MkdirTemp(base, "export-")
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, "image.db")
	if err := gdb.WithContext(ctx).Exec("VACUUM INTO ?", target).Error; err != nil {
		return nil, fmt.Errorf("vacuum into export file: %w", err)
	}
	return os.ReadFile(target)
}

// save writes the image to the blob store. Callers hold s.mu.
func (s *Store) save(ctx context.Context) error {
	image, err := s.exportImage(ctx)
	if err != nil {
		s.dirty = true
		return apperr.Wrap(apperr.CodeStoreSaveFailed, "export database image", err)
	}
	if err := s.blobs.Put(ctx, s.key, image); err != nil {
		s.dirty = true
		return apperr.Wrap(apperr.CodeStoreSaveFailed, "write database image", err)
	}
	s.dirty = false
	s.loaded = sha256.Sum256(image)
	return nil
}

// persist is the write-through save run after each mutation. The mutation
// is already committed in the engine, so a failed save only marks the store
// dirty for the autosave timer.
func (s *Store) persist(ctx context.Context) {
	if err := s.save(ctx); err != nil {
		s.log.Error("save error", zap.String("key", s.key), zap.Error(err))
	}
}

// Save writes the current image to the blob store
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx); err != nil {
		s.log.Error("save error", zap.String("key", s.key), zap.Error(err))
		return err
	}
	return nil
}

// Flush retries the save when a previous write-through save failed
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.db == nil {
		return nil
	}
	if err := s.save(ctx); err != nil {
		s.log.Error("save retry failed", zap.String("key", s.key), zap.Error(err))
		return err
	}
	s.log.Info("pending image saved", zap.String("key", s.key))
	return nil
}

// Refresh reloads the engine from the stored image when another process
// saved it since this store last loaded or saved. Unsaved local changes win:
// with the store dirty the stored image is left alone until Flush.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.handle(); err != nil {
		return err
	}

	image, err := s.blobs.Get(ctx, s.key)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		return nil
	case err != nil:
		return apperr.Wrap(apperr.CodeStoreUnavailable, "read database image", err)
	}

	sum := sha256.Sum256(image)
	if sum == s.loaded {
		return nil
	}
	if s.dirty {
		s.log.Warn("stored image changed while local changes are unsaved, keeping local", zap.String("key", s.key))
		return nil
	}

	gdb, scratch, err := s.openEngine(image)
	if err != nil {
		s.log.Warn("reload database image failed, keeping current engine", zap.String("key", s.key), zap.Error(err))
		return apperr.Wrap(apperr.CodeStoreUnavailable, "reload database image", err)
	}
	if err := migrate(gdb, s.log, s.now(), s.yearRewrite); err != nil {
		closeEngine(gdb, scratch)
		return apperr.Wrap(apperr.CodeStoreUnavailable, "migrate reloaded image", err)
	}

	closeEngine(s.db, s.scratch)
	s.db, s.scratch, s.loaded = gdb, scratch, sum
	s.log.Debug("database image reloaded", zap.String("key", s.key))
	return nil
}

// Dirty reports whether the last save failed
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// ExportRawImage returns the full serialized database image for backups
func (s *Store) ExportRawImage(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	image, err := s.exportImage(ctx)
	if err != nil {
		s.log.Error("export image failed", zap.Error(err))
		if errors.Is(err, apperr.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeStoreQueryFailed, "export database image", err)
	}
	return image, nil
}

// Reset discards all local data: the stored image is deleted and an empty
// schema is created in its place.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blobs.Delete(ctx, s.key); err != nil {
		s.log.Error("delete database image failed", zap.Error(err))
		return apperr.Wrap(apperr.CodeStoreUnavailable, "delete database image", err)
	}

	closeEngine(s.db, s.scratch)
	s.db, s.scratch = nil, ""

	gdb, scratch, err := s.openEngine(nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStoreUnavailable, "open engine", err)
	}
	if err := migrate(gdb, s.log, s.now(), nil); err != nil {
		closeEngine(gdb, scratch)
		return apperr.Wrap(apperr.CodeStoreUnavailable, "migrate schema", err)
	}
	s.db, s.scratch = gdb, scratch
	s.persist(ctx)

	s.log.Info("local data cleared", zap.String("key", s.key))
	return nil
}

// Close saves a pending image, then releases the engine and its scratch files
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	var saveErr error
	if s.dirty {
		saveErr = s.save(context.Background())
	}
	closeEngine(s.db, s.scratch)
	s.db, s.scratch = nil, ""
	return saveErr
}

// queryErr logs and wraps an engine-level failure
func (s *Store) queryErr(op string, err error) error {
	if errors.Is(err, apperr.ErrStoreUnavailable) {
		s.log.Warn(op+" called before init")
		return err
	}
	var coded *apperr.CodedError
	if errors.As(err, &coded) {
		return err
	}
	s.log.Error(op+" error", zap.Error(err))
	return apperr.Wrap(apperr.CodeStoreQueryFailed, strings.ReplaceAll(op, "_", " "), err)
}
