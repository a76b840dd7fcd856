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
	t.Chdir(t.TempDir())

	cfg := Load()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Engine.Mode)
	assert.Equal(t, 5, cfg.Batch.ProbeGroupSize)
	assert.Equal(t, 3, cfg.Batch.ArchiveGroupSize)
	assert.Equal(t, 5*time.Second, cfg.Fetch.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Fetch.RelayTimeout)
	assert.Equal(t, int64(50<<20), cfg.Fetch.MaxImageBytes)
	assert.Equal(t, "memory", cfg.Jobs.Driver)
	assert.False(t, cfg.Auth.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"Font", "Media"}, cfg.Engine.Browser.BlockResources)
	assert.True(t, cfg.Engine.Browser.BlockAds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IMAGESCOUT_PORT", "9090")
	t.Setenv("IMAGESCOUT_ENGINE", "AUTO")
	t.Setenv("IMAGESCOUT_PROBE_TIMEOUT", "2s")
	t.Setenv("IMAGESCOUT_API_KEYS", " k1 , ,k2")
	t.Setenv("IMAGESCOUT_HEADLESS", "not-a-bool")
	t.Setenv("IMAGESCOUT_BLOCK_RESOURCES", "Stylesheet")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "auto", cfg.Engine.Mode)
	assert.Equal(t, 2*time.Second, cfg.Fetch.ProbeTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
	assert.True(t, cfg.Engine.Browser.Headless, "unparsable values fall back")
	assert.Equal(t, []string{"Stylesheet"}, cfg.Engine.Browser.BlockResources)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("IMAGESCOUT_JOBS_DRIVER=redis\nIMAGESCOUT_RATE_BURST=42\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("IMAGESCOUT_RATE_BURST=7\n"), 0o600))
	t.Setenv("IMAGESCOUT_JOBS_DRIVER", "")
	os.Unsetenv("IMAGESCOUT_JOBS_DRIVER")
	t.Setenv("IMAGESCOUT_RATE_BURST", "")
	os.Unsetenv("IMAGESCOUT_RATE_BURST")
	t.Cleanup(func() {
		os.Unsetenv("IMAGESCOUT_JOBS_DRIVER")
		os.Unsetenv("IMAGESCOUT_RATE_BURST")
	})

	cfg := Load()
	assert.Equal(t, "redis", cfg.Jobs.Driver)
	assert.Equal(t, 7, cfg.RateLimit.Burst, ".env.local wins over .env")
}
