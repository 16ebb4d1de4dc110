package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 1, cfg.Bulletins.WorkerConcurrency)
	assert.Equal(t, 0, cfg.Bulletins.WorkerRetries)
	assert.Equal(t, "pdf", cfg.Bulletins.Format)
	assert.Equal(t, 24*time.Hour, cfg.Bulletins.SignedURLTTL)
	assert.Equal(t, "@hourly", cfg.Bulletins.CleanupSchedule)
}

func TestFromViperClampsWorkerSettings(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("BULLETINS_WORKER_CONCURRENCY", 0)
	v.Set("BULLETINS_WORKER_RETRIES", -2)
	v.Set("BULLETINS_FORMAT", "CSV")
	v.Set("BULLETINS_STATS_CACHE_TTL", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, 1, cfg.Bulletins.WorkerConcurrency)
	assert.Equal(t, 0, cfg.Bulletins.WorkerRetries)
	assert.Equal(t, "csv", cfg.Bulletins.Format)
	assert.Equal(t, 10*time.Minute, cfg.Bulletins.StatsCacheTTL)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}
