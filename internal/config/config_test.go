package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user:\n  uid: u1\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "u1", cfg.User.UID)
	assert.Equal(t, "student", cfg.User.Role)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "dtr_database_v3", cfg.Store.Key)
	assert.Equal(t, 5*time.Minute, cfg.Store.AutosaveInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.Store.Retention)
	assert.Equal(t, 50, cfg.Store.ListLimit)
	assert.Equal(t, 5*time.Second, cfg.Location.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Sync.UploadTimeout)
	assert.Equal(t, 700*1024, cfg.Sync.InlineMaxBytes)
	assert.False(t, cfg.Remote.Enabled())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtr.yaml")
	content := `
store:
  backend: redis
  key: dtr_database_v4
remote:
  driver: postgres
  dsn: "host=db user=dtr"
sync:
  inline_evidence: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "dtr_database_v4", cfg.Store.Key)
	assert.True(t, cfg.Remote.Enabled())
	assert.True(t, cfg.Sync.InlineEvidence)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0600))
	t.Setenv("DTR_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: s3\n"), 0600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "store.backend")

	require.NoError(t, os.WriteFile(path, []byte("remote:\n  driver: sqlite\n"), 0600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "remote.dsn")

	require.NoError(t, os.WriteFile(path, []byte("migrations:\n  rewrite_year_from: 2025\n"), 0600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "rewrite_year")
}
