package config

import (
	"testing"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindEnv_Defaults(t *testing.T) {
	var cfg Config
	require.NoError(t, ectoenv.BindEnv(&cfg))

	assert.Equal(t, "sage", cfg.AppName)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "db/pg", cfg.DatabaseMigrationFolderPath)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "version-events", cfg.KafkaOutputTopic)
	assert.Equal(t, 15*time.Minute, cfg.LockDefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.SchedulerSweepInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.DiffCacheRetention)
}

func TestBindEnv_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_NAME", "sage-test")
	t.Setenv("LOCK_DEFAULT_TTL", "90s")
	t.Setenv("KAFKA_ENABLED", "false")

	var cfg Config
	require.NoError(t, ectoenv.BindEnv(&cfg))

	assert.Equal(t, "sage-test", cfg.AppName)
	assert.Equal(t, 90*time.Second, cfg.LockDefaultTTL)
	assert.False(t, cfg.KafkaEnabled)
}
