package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOMSConfig_DefaultsAppliedWhenUnset(t *testing.T) {
	t.Setenv("OMS_RELATIONAL_DSN", "postgres://localhost/oms")

	cfg := LoadOMSConfig()
	assert.Equal(t, "postgres://localhost/oms", cfg.RelationalDSN)
	assert.Equal(t, "./data", cfg.DataRoot)
	assert.Equal(t, "./data/clips.db", cfg.ClipIndexPath)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	assert.Equal(t, 120.0, cfg.MaxClipDurationSeconds)
	assert.False(t, cfg.EnableHLS)
	assert.Equal(t, 300*time.Second, cfg.ResolverCacheTTL)
	assert.Equal(t, 10000, cfg.ResolverCacheMaxRows)
	assert.Equal(t, "", cfg.CacheBackend)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOMSConfig_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("OMS_RELATIONAL_DSN", "postgres://localhost/oms")
	t.Setenv("OMS_DATA_ROOT", "/mnt/data")
	t.Setenv("OMS_WORKER_POOL_SIZE", "8")
	t.Setenv("OMS_ENABLE_HLS", "true")
	t.Setenv("OMS_CACHE_BACKEND", "redis")
	t.Setenv("OMS_RESOLVER_CACHE_TTL", "45s")

	cfg := LoadOMSConfig()
	assert.Equal(t, "/mnt/data", cfg.DataRoot)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.True(t, cfg.EnableHLS)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 45*time.Second, cfg.ResolverCacheTTL)
}

func TestLoadOMSConfig_MissingRequiredDSNPanics(t *testing.T) {
	assert.Panics(t, func() { LoadOMSConfig() })
}

func TestOMSConfigValidate_ValidConfigPasses(t *testing.T) {
	cfg := OMSConfig{
		RelationalDSN:          "postgres://localhost/oms",
		DataRoot:               "./data",
		WorkerPoolSize:         3,
		MaxClipDurationSeconds: 120,
	}
	require.NoError(t, cfg.Validate())
}

func TestOMSConfigValidate_MissingDSNFails(t *testing.T) {
	cfg := OMSConfig{
		DataRoot:               "./data",
		WorkerPoolSize:         3,
		MaxClipDurationSeconds: 120,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RelationalDSN")
}

func TestOMSConfigValidate_NonPositiveWorkerPoolFails(t *testing.T) {
	cfg := OMSConfig{
		RelationalDSN:          "postgres://localhost/oms",
		DataRoot:               "./data",
		WorkerPoolSize:         0,
		MaxClipDurationSeconds: 120,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WorkerPoolSize")
}

func TestOMSConfigValidate_DurationOutOfRangeFails(t *testing.T) {
	cfg := OMSConfig{
		RelationalDSN:          "postgres://localhost/oms",
		DataRoot:               "./data",
		WorkerPoolSize:         3,
		MaxClipDurationSeconds: 500,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxClipDurationSeconds")
}

func TestOMSConfigValidate_UnknownCacheBackendFails(t *testing.T) {
	cfg := OMSConfig{
		RelationalDSN:          "postgres://localhost/oms",
		DataRoot:               "./data",
		WorkerPoolSize:         3,
		MaxClipDurationSeconds: 120,
		CacheBackend:           "memcached",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CacheBackend")
}
