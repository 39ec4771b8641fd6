package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, cnf Configuration) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "earnly.json")
	data, err := json.Marshal(cnf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0o600))
	return file
}

func TestInitConfigDefaults(t *testing.T) {
	file := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/earnly"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	err := InitConfig(file)
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Earnly Server", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "development", cnf.Environment)
	assert.False(t, cnf.IsProduction())
	assert.Equal(t, "new:bonus_points", cnf.Queue.BonusPointsQueue)
	assert.Equal(t, "new:webhook", cnf.Queue.WebhookQueue)
}

func TestInitConfigMissingDataSource(t *testing.T) {
	file := writeConfigFile(t, Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	})

	err := InitConfig(file)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EARNLY_ENVIRONMENT", "production")
	t.Setenv("EARNLY_SERVER_PORT", "9900")

	file := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/earnly"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	err := InitConfig(file)
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.True(t, cnf.IsProduction())
	assert.Equal(t, "9900", cnf.Server.Port)
}

func TestProvidersConfigGet(t *testing.T) {
	providers := ProvidersConfig{
		Kiwiwall: ProviderConfig{Secret: "kw-secret"},
		BitLabs:  ProviderConfig{Secret: "bl-secret", ObserveOnly: true},
	}

	assert.Equal(t, "kw-secret", providers.Get("kiwiwall").Secret)
	assert.True(t, providers.Get("bitlabs").ObserveOnly)
	assert.Empty(t, providers.Get("unknown-network").Secret)
}

func TestRateLimitDefaults(t *testing.T) {
	rps := 20.0
	file := writeConfigFile(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/earnly"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: &rps},
	})

	err := InitConfig(file)
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	require.NotNil(t, cnf.RateLimit.Burst)
	assert.Equal(t, 40, *cnf.RateLimit.Burst)
	require.NotNil(t, cnf.RateLimit.CleanupIntervalSec)
	assert.Equal(t, 10800, *cnf.RateLimit.CleanupIntervalSec)
}
