package environment

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				switch key {
				case "RECONNECT_BASE_DELAY", "RECONNECT_MAX_DELAY", "MAX_RECONNECT_ATTEMPTS",
					"OPERATION_TIMEOUT", "CIRCUIT_BREAKER_FAILURE_THRESHOLD", "CIRCUIT_BREAKER_SUCCESS_THRESHOLD",
					"CIRCUIT_BREAKER_OPEN_DURATION", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUSTED_PROXIES",
					"STATS_CACHE_TTL", "HEALTH_CHECK_INTERVAL", "BROKER_ADDRESS", "LISTEN_ADDR", "API_KEY":
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	fs := afero.NewMemMapFs()

	cfg, err := Load(fs, "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.CircuitBreakerFailureThreshold)
	assert.Equal(t, 2, cfg.CircuitBreakerSuccessThreshold)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, 50, cfg.RateLimitBurst)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadRejectsInvertedReconnectDelays(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECONNECT_BASE_DELAY", "30s")
	t.Setenv("RECONNECT_MAX_DELAY", "1s")

	fs := afero.NewMemMapFs()
	_, err := Load(fs, "")
	require.Error(t, err)
}

func TestLoadParsesTrustedProxies(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	fs := afero.NewMemMapFs()
	cfg, err := Load(fs, "")
	require.NoError(t, err)
	require.Len(t, cfg.TrustedProxies, 2)
	assert.Equal(t, 8, cfg.TrustedProxies[0].Bits())
	assert.Equal(t, 32, cfg.TrustedProxies[1].Bits())
}

func TestLoadFromDotenvFile(t *testing.T) {
	clearEnv(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/.gatewayd.env", []byte("RATE_LIMIT_RPS=7\n"), 0o644))

	cfg, err := Load(fs, "/app/.gatewayd.env")
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.RateLimitRPS)
	os.Unsetenv("RATE_LIMIT_RPS")
}
