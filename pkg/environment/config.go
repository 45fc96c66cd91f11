// Package environment loads the gateway's configuration from process
// environment variables (optionally seeded from a .env file), validates
// it against the invariants of the resilience core, and resolves the
// default on-disk location of a scaffolded config file.
package environment

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	gwerrors "github.com/relaywire/gatewayd/pkg/errors"
	"github.com/relaywire/gatewayd/pkg/identity"
)

// SystemConfigFileName is the name of the optional scaffolded env file
// `gatewayd config init` and `config edit` use by default. `gatewayd
// serve` does not look for it; it reads only its --env-file path.
const SystemConfigFileName = ".gatewayd.env"

// rawEnv mirrors the environment variable surface with string fields so
// that go-env's struct-tag defaults stay simple; Load parses and
// validates these into a Config.
type rawEnv struct {
	ReconnectBaseDelay             string `env:"RECONNECT_BASE_DELAY,default=1s"`
	ReconnectMaxDelay              string `env:"RECONNECT_MAX_DELAY,default=30s"`
	MaxReconnectAttempts           string `env:"MAX_RECONNECT_ATTEMPTS,default=0"`
	OperationTimeout               string `env:"OPERATION_TIMEOUT,default=30s"`
	CircuitBreakerFailureThreshold string `env:"CIRCUIT_BREAKER_FAILURE_THRESHOLD,default=5"`
	CircuitBreakerSuccessThreshold string `env:"CIRCUIT_BREAKER_SUCCESS_THRESHOLD,default=2"`
	CircuitBreakerOpenDuration     string `env:"CIRCUIT_BREAKER_OPEN_DURATION,default=30s"`
	RateLimitRPS                   string `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst                 string `env:"RATE_LIMIT_BURST,default=50"`
	TrustedProxies                 string `env:"TRUSTED_PROXIES,default="`
	StatsCacheTTL                  string `env:"STATS_CACHE_TTL,default=5s"`
	HealthCheckInterval            string `env:"HEALTH_CHECK_INTERVAL,default=30s"`
	BrokerAddress                  string `env:"BROKER_ADDRESS,default=127.0.0.1:8090"`
	ListenAddress                  string `env:"LISTEN_ADDR,default=:8080"`
	APIKey                         string `env:"API_KEY,default="`
	Extras                         env.EnvSet
}

// Config is the validated, typed configuration consumed by every
// resilience component.
type Config struct {
	ReconnectBaseDelay             time.Duration
	ReconnectMaxDelay              time.Duration
	MaxReconnectAttempts           int
	OperationTimeout               time.Duration
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerOpenDuration     time.Duration
	RateLimitRPS                   float64
	RateLimitBurst                 int
	TrustedProxies                 []netip.Prefix
	StatsCacheTTL                  time.Duration
	HealthCheckInterval            time.Duration
	BrokerAddress                  string
	ListenAddress                  string
	APIKey                         string
}

// Load reads a .env file if present (errors from a missing file are
// ignored, mirroring godotenv's own recommendation), unmarshals the
// environment via go-env, and validates the result.
func Load(fs afero.Fs, dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if exists, _ := afero.Exists(fs, dotenvPath); exists {
			if err := loadDotenvFromFs(fs, dotenvPath); err != nil {
				return nil, gwerrors.New(gwerrors.ConfigError, "failed to read .env file").WithCause(err)
			}
		}
	}

	raw := &rawEnv{}
	if _, err := env.UnmarshalFromEnviron(raw); err != nil {
		return nil, gwerrors.New(gwerrors.ConfigError, "failed to read environment").WithCause(err)
	}

	cfg, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenvFromFs reads a .env file through the afero abstraction (for
// test isolation) and applies it to the real process environment, the
// way godotenv.Load would for a file on the real filesystem.
func loadDotenvFromFs(fs afero.Fs, path string) error {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	vars, err := godotenv.UnmarshalBytes(content)
	if err != nil {
		return err
	}
	for k, v := range vars {
		if _, set := os.LookupEnv(k); !set {
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func parse(raw *rawEnv) (*Config, error) {
	cfg := &Config{
		BrokerAddress: raw.BrokerAddress,
		ListenAddress: raw.ListenAddress,
		APIKey:        raw.APIKey,
	}

	var err error
	if cfg.ReconnectBaseDelay, err = time.ParseDuration(raw.ReconnectBaseDelay); err != nil {
		return nil, badDuration("reconnect-base-delay", err)
	}
	if cfg.ReconnectMaxDelay, err = time.ParseDuration(raw.ReconnectMaxDelay); err != nil {
		return nil, badDuration("reconnect-max-delay", err)
	}
	if cfg.MaxReconnectAttempts, err = strconv.Atoi(raw.MaxReconnectAttempts); err != nil {
		return nil, badInt("max-reconnect-attempts", err)
	}
	if cfg.OperationTimeout, err = time.ParseDuration(raw.OperationTimeout); err != nil {
		return nil, badDuration("operation-timeout", err)
	}
	if cfg.CircuitBreakerFailureThreshold, err = strconv.Atoi(raw.CircuitBreakerFailureThreshold); err != nil {
		return nil, badInt("circuit-breaker-failure-threshold", err)
	}
	if cfg.CircuitBreakerSuccessThreshold, err = strconv.Atoi(raw.CircuitBreakerSuccessThreshold); err != nil {
		return nil, badInt("circuit-breaker-success-threshold", err)
	}
	if cfg.CircuitBreakerOpenDuration, err = time.ParseDuration(raw.CircuitBreakerOpenDuration); err != nil {
		return nil, badDuration("circuit-breaker-open-duration", err)
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(raw.RateLimitRPS, 64); err != nil {
		return nil, badInt("rate-limit-rps", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(raw.RateLimitBurst); err != nil {
		return nil, badInt("rate-limit-burst", err)
	}
	if cfg.StatsCacheTTL, err = time.ParseDuration(raw.StatsCacheTTL); err != nil {
		return nil, badDuration("stats-cache-ttl", err)
	}
	if cfg.HealthCheckInterval, err = time.ParseDuration(raw.HealthCheckInterval); err != nil {
		return nil, badDuration("health-check-interval", err)
	}

	cfg.TrustedProxies, err = parseCIDRList(raw.TrustedProxies)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseCIDRList(csv string) ([]netip.Prefix, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	var out []netip.Prefix
	for _, raw := range strings.Split(csv, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := identity.ParseCIDROrIP(raw)
		if err != nil {
			return nil, gwerrors.New(gwerrors.ConfigError, "invalid trusted-proxies entry").
				WithContext("value", raw).WithCause(err)
		}
		out = append(out, prefix)
	}
	return out, nil
}

func badDuration(field string, cause error) error {
	return gwerrors.New(gwerrors.ConfigError, fmt.Sprintf("invalid duration for %s", field)).WithCause(cause)
}

func badInt(field string, cause error) error {
	return gwerrors.New(gwerrors.ConfigError, fmt.Sprintf("invalid number for %s", field)).WithCause(cause)
}

// validate enforces the load-time invariants.
func validate(c *Config) error {
	if c.ReconnectBaseDelay <= 0 || c.ReconnectMaxDelay <= 0 {
		return gwerrors.New(gwerrors.ConfigError, "reconnect delays must be positive")
	}
	if c.ReconnectBaseDelay > c.ReconnectMaxDelay {
		return gwerrors.New(gwerrors.ConfigError, "reconnect-base-delay must be <= reconnect-max-delay")
	}
	if c.MaxReconnectAttempts < 0 {
		return gwerrors.New(gwerrors.ConfigError, "max-reconnect-attempts must be >= 0")
	}
	if c.OperationTimeout <= 0 {
		return gwerrors.New(gwerrors.ConfigError, "operation-timeout must be positive")
	}
	if c.CircuitBreakerFailureThreshold <= 0 || c.CircuitBreakerSuccessThreshold <= 0 {
		return gwerrors.New(gwerrors.ConfigError, "circuit breaker thresholds must be positive")
	}
	if c.CircuitBreakerOpenDuration <= 0 {
		return gwerrors.New(gwerrors.ConfigError, "circuit-breaker-open-duration must be positive")
	}
	if c.RateLimitRPS < 0 {
		return gwerrors.New(gwerrors.ConfigError, "rate-limit-rps must be >= 0")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return gwerrors.New(gwerrors.ConfigError, "rate-limit-burst must be >= 1 when the limiter is installed")
	}
	if c.StatsCacheTTL <= 0 || c.HealthCheckInterval <= 0 {
		return gwerrors.New(gwerrors.ConfigError, "stats-cache-ttl and health-check-interval must be positive")
	}
	return nil
}

// DefaultConfigPath resolves where `gatewayd config init`/`config edit`
// read and write the scaffolded env file, preferring XDG_CONFIG_HOME.
func DefaultConfigPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("gatewayd", SystemConfigFileName))
}
