package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityledger/internal/proposition/models"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, DriverPgx, cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, "cityledger:proposition:seq", cfg.Redis.SequenceKey)
	assert.Equal(t, "cityledger.events", cfg.Events.Topic)
	assert.Empty(t, cfg.Events.Brokers)

	lc, err := cfg.Lifecycle()
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusAccepted, models.StatusDenied}, lc.Terminal())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CITYLEDGER_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/cityledger")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("EVENTS_KAFKA_BROKERS", "a:9092, b:9092,a:9092")
	t.Setenv("CITYLEDGER_TERMINAL_STATUSES", "redeemed, expired")
	t.Setenv("CITYLEDGER_TX_TIMEOUT", "250ms")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.TxTimeout)

	lc, err := cfg.Lifecycle()
	require.NoError(t, err)
	assert.Equal(t, []models.Status{"REDEEMED", "EXPIRED"}, lc.Terminal())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"CITYLEDGER_STORE": "postgres"}},
		{"unknown store", map[string]string{"CITYLEDGER_STORE": "etcd"}},
		{"unknown driver", map[string]string{"CITYLEDGER_STORE": "postgres", "DATABASE_URL": "postgres://x", "DATABASE_DRIVER": "mysql"}},
		{"placed as terminal", map[string]string{"CITYLEDGER_TERMINAL_STATUSES": "PLACED"}},
		{"no terminal statuses", map[string]string{"CITYLEDGER_TERMINAL_STATUSES": " , "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
