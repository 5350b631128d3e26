package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-doc-approvals", cfg.Service.Name)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  name: approvals-test
storage:
  driver: memory
server:
  port: 9000
  shutdown_timeout: 5s
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "approvals-test", cfg.Service.Name)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "sqlite"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsPortClash(t *testing.T) {
	cfg := Default()
	cfg.GRPC.Port = cfg.Server.Port

	assert.Error(t, cfg.Validate())
}
