package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "sqlpilot.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SQLPILOT_PORT")
	setString(&cfg.Server.CORSOrigin, "SQLPILOT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SQLPILOT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SQLPILOT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SQLPILOT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SQLPILOT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SQLPILOT_PG_HEALTH_CHECK")
	setBool(&cfg.Postgres.SeedDemoData, "SQLPILOT_PG_SEED_DEMO_DATA")
	setString(&cfg.LLM.DefaultProvider, "SQLPILOT_LLM_PROVIDER")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt64(&cfg.Cache.MaxSizeMB, "SQLPILOT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "SQLPILOT_CACHE_TTL")
	setInt(&cfg.Breaker.MaxFailures, "SQLPILOT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SQLPILOT_BREAKER_TIMEOUT")
	setInt(&cfg.Security.MaxResultRows, "SQLPILOT_MAX_RESULT_ROWS")
	setInt(&cfg.Validation.PerformanceRuns, "SQLPILOT_PERFORMANCE_RUNS")
	setDuration(&cfg.Validation.QueryTimeout, "SQLPILOT_QUERY_TIMEOUT")
	setInt(&cfg.Agent.MaxIterations, "SQLPILOT_AGENT_MAX_ITERATIONS")
	setFloat64(&cfg.Agent.MinImprovementRatio, "SQLPILOT_AGENT_MIN_RATIO")
	setInt64(&cfg.Agent.MaxConcurrentRuns, "SQLPILOT_AGENT_MAX_CONCURRENT")
	setString(&cfg.Auth.APIKeyHash, "SQLPILOT_API_KEY_HASH")
	setString(&cfg.Logging.Level, "SQLPILOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SQLPILOT_LOG_SERVICE")
	setBool(&cfg.Telemetry.Enabled, "SQLPILOT_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "SQLPILOT_OTEL_ENDPOINT")

	// Provider credentials come from env per provider, never from YAML
	// committed to disk.
	overlayProviderEnv(cfg, "openai", "OPENAI_API_KEY")
	overlayProviderEnv(cfg, "deepseek", "DEEPSEEK_API_KEY")
	overlayProviderEnv(cfg, "qwen", "QWEN_API_KEY")
}

// overlayProviderEnv sets the API key for a named provider block when the
// env variable is present and the block exists.
func overlayProviderEnv(cfg *Config, name, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	p, ok := cfg.LLM.Providers[name]
	if !ok {
		return
	}
	p.APIKey = v
	cfg.LLM.Providers[name] = p
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm.default_provider %q has no provider block", cfg.LLM.DefaultProvider)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be >= 1")
	}
	if cfg.Agent.MaxConcurrentRuns < 1 {
		return errors.New("agent.max_concurrent_runs must be >= 1")
	}
	if cfg.Validation.PerformanceRuns < 1 {
		return errors.New("validation.performance_runs must be >= 1")
	}
	if cfg.Security.MaxResultRows < 1 {
		return errors.New("security.max_result_rows must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
