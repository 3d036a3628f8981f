package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into a scratch dir so no stray garage.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy.db", cfg.Legacy.DB)
	assert.Equal(t, "backups", cfg.Backup.Dir)
	assert.False(t, cfg.Import.Strict)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.AllowedHomeIP)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "garage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
legacy:
  db: /srv/old/garage.db
backup:
  dir: /srv/backups
log:
  format: json
`), 0o600))

	t.Setenv("GARAGE_BACKUP_DIR", "/tmp/override")
	t.Setenv("GARAGE_IMPORT_STRICT", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/old/garage.db", cfg.Legacy.DB)
	assert.Equal(t, "/tmp/override", cfg.Backup.Dir)
	assert.True(t, cfg.Import.Strict)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadHistoricAllowedIP(t *testing.T) {
	chdir(t)
	t.Setenv("ALLOWED_HOME_IP", "203.0.113.7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", cfg.AllowedHomeIP)

	t.Setenv("GARAGE_ALLOWED_HOME_IP", "198.51.100.0/24")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.0/24", cfg.AllowedHomeIP)
}

func TestLoadExplicitMissing(t *testing.T) {
	chdir(t)

	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsBadFormat(t *testing.T) {
	chdir(t)
	t.Setenv("GARAGE_LOG_FORMAT", "xml")

	_, err := Load("")
	assert.Error(t, err)
}
