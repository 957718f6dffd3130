// Package config loads the dtr configuration.
// Precedence: DTR_* environment variables > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration
type Config struct {
	User       UserConfig       `mapstructure:"user"`
	DataDir    string           `mapstructure:"data_dir"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Evidence   EvidenceConfig   `mapstructure:"evidence"`
	Location   LocationConfig   `mapstructure:"location"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

// UserConfig identifies the signed-in user for remote paths.
// Sign-in itself happens outside dtr.
type UserConfig struct {
	UID       string `mapstructure:"uid"`
	Name      string `mapstructure:"name"`
	Role      string `mapstructure:"role"` // student | teacher
	ClassCode string `mapstructure:"class_code"`
}

// StoreConfig controls the local store and its blob persistence
type StoreConfig struct {
	Backend          string        `mapstructure:"backend"` // file | redis
	Key              string        `mapstructure:"key"`     // versioned blob key for the database image
	ScratchDir       string        `mapstructure:"scratch_dir"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	Retention        time.Duration `mapstructure:"retention"`
	ListLimit        int           `mapstructure:"list_limit"`
}

// RedisConfig is used when store.backend = redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RemoteConfig describes the shared backend
type RemoteConfig struct {
	Driver    string `mapstructure:"driver"` // postgres | sqlite | "" (disabled)
	DSN       string `mapstructure:"dsn"`
	Uploader  string `mapstructure:"uploader"` // db | http
	UploadURL string `mapstructure:"upload_url"`
}

// Enabled reports whether a remote backend is configured
func (c RemoteConfig) Enabled() bool {
	return c.Driver != ""
}

// SyncConfig tunes the reconciler and its triggers
type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MinGap         time.Duration `mapstructure:"min_gap"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`
	InlineEvidence bool          `mapstructure:"inline_evidence"`
	InlineMaxBytes int           `mapstructure:"inline_max_bytes"`
	ProbeAddr      string        `mapstructure:"probe_addr"`
}

// EvidenceConfig controls photo proof-of-work
type EvidenceConfig struct {
	Required     bool `mapstructure:"required"`
	MaxDimension int  `mapstructure:"max_dimension"`
	JPEGQuality  int  `mapstructure:"jpeg_quality"`
}

// LocationConfig controls coordinate capture
type LocationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Fixed   string        `mapstructure:"fixed"` // static "lat,lng" for hosts without GPS
}

// MigrationsConfig holds opt-in data patches
type MigrationsConfig struct {
	RewriteYearFrom int `mapstructure:"rewrite_year_from"`
	RewriteYearTo   int `mapstructure:"rewrite_year_to"`
}

// ServerConfig is the supervisor HTTP API
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig selects zap level and encoding
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// DefaultDataDir returns ~/.dtr
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dtr"
	}
	return filepath.Join(home, ".dtr")
}

// Load reads configuration from path (or the default search paths when empty)
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("user.role", "student")

	v.SetDefault("data_dir", DefaultDataDir())

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.key", "dtr_database_v3")
	v.SetDefault("store.scratch_dir", "")
	v.SetDefault("store.autosave_interval", "5m")
	v.SetDefault("store.retention", "720h")
	v.SetDefault("store.list_limit", 50)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("remote.driver", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.uploader", "db")
	v.SetDefault("remote.upload_url", "")

	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.min_gap", "30s")
	v.SetDefault("sync.upload_timeout", "10s")
	v.SetDefault("sync.inline_evidence", false)
	v.SetDefault("sync.inline_max_bytes", 700*1024)
	v.SetDefault("sync.probe_addr", "")

	v.SetDefault("evidence.required", false)
	v.SetDefault("evidence.max_dimension", 1024)
	v.SetDefault("evidence.jpeg_quality", 70)

	v.SetDefault("location.timeout", "5s")
	v.SetDefault("location.fixed", "")

	v.SetDefault("migrations.rewrite_year_from", 0)
	v.SetDefault("migrations.rewrite_year_to", 0)

	v.SetDefault("server.addr", "127.0.0.1:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dtr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
	}

	v.SetEnvPrefix("DTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file: defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values other packages rely on
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("config: store.backend must be file or redis, got %q", c.Store.Backend)
	}
	if c.Store.Key == "" {
		return fmt.Errorf("config: store.key must not be empty")
	}
	switch c.Remote.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: remote.driver must be postgres or sqlite, got %q", c.Remote.Driver)
	}
	if c.Remote.Enabled() && c.Remote.DSN == "" {
		return fmt.Errorf("config: remote.dsn is required when remote.driver is set")
	}
	switch c.Remote.Uploader {
	case "db":
	case "http":
		if c.Remote.UploadURL == "" {
			return fmt.Errorf("config: remote.upload_url is required for the http uploader")
		}
	default:
		return fmt.Errorf("config: remote.uploader must be db or http, got %q", c.Remote.Uploader)
	}
	switch c.User.Role {
	case "student", "teacher":
	default:
		return fmt.Errorf("config: user.role must be student or teacher, got %q", c.User.Role)
	}
	if c.Store.Retention <= 0 {
		return fmt.Errorf("config: store.retention must be positive")
	}
	if c.Evidence.JPEGQuality < 1 || c.Evidence.JPEGQuality > 100 {
		return fmt.Errorf("config: evidence.jpeg_quality must be between 1 and 100")
	}
	if (c.Migrations.RewriteYearFrom == 0) != (c.Migrations.RewriteYearTo == 0) {
		return fmt.Errorf("config: migrations.rewrite_year_from and rewrite_year_to must be set together")
	}
	return nil
}
