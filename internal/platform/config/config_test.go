package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.UsesDevSecret())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WATERLILY_DB_DRIVER", "postgres")
	t.Setenv("WATERLILY_DB_DSN", "postgres://localhost/waterlily")
	t.Setenv("WATERLILY_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("WATERLILY_TX_TIMEOUT", "2s")

	v, err := New()
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/waterlily", cfg.Database.DSN)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Database.TxTimeout)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--addr", ":9000", "--db-driver", "memory"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("WATERLILY_DB_DRIVER", "oracle")

	v, err := New()
	require.NoError(t, err)
	_, err = Load(v)
	assert.ErrorContains(t, err, "unsupported db.driver")
}
