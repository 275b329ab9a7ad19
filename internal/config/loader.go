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
const DefaultConfigFile = "tuning.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
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
	setString(&cfg.Server.Port, "ONESEEK_TUNING_PORT")
	setString(&cfg.Server.CORSOrigin, "ONESEEK_TUNING_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ONESEEK_TUNING_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ONESEEK_TUNING_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ONESEEK_TUNING_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ONESEEK_TUNING_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ONESEEK_TUNING_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.Logging.Level, "ONESEEK_TUNING_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ONESEEK_TUNING_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "ONESEEK_TUNING_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ONESEEK_TUNING_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "ONESEEK_TUNING_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "ONESEEK_TUNING_CACHE_TTL")
	setBool(&cfg.Telemetry.Enabled, "ONESEEK_TUNING_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFloat64(&cfg.Tuning.TargetSuccessRate, "ONESEEK_TUNING_TARGET_RATE")
	setInt(&cfg.Tuning.MaxIterations, "ONESEEK_TUNING_MAX_ITERATIONS")
	setInt(&cfg.Tuning.Patience, "ONESEEK_TUNING_PATIENCE")
	setFloat64(&cfg.Tuning.MinImprovementDelta, "ONESEEK_TUNING_MIN_DELTA")
	setBool(&cfg.Tuning.UseHoldout, "ONESEEK_TUNING_USE_HOLDOUT")
	setInt(&cfg.Tuning.QuestionCount, "ONESEEK_TUNING_QUESTION_COUNT")
	setInt(&cfg.Tuning.HoldoutQuestions, "ONESEEK_TUNING_HOLDOUT_QUESTIONS")
	setDuration(&cfg.Tuning.GenerateTimeout, "ONESEEK_TUNING_GENERATE_TIMEOUT")
	setDuration(&cfg.Tuning.EvalTimeout, "ONESEEK_TUNING_EVAL_TIMEOUT")
	setDuration(&cfg.Tuning.SuggestTimeout, "ONESEEK_TUNING_SUGGEST_TIMEOUT")
	setString(&cfg.Tuning.GenerateModel, "ONESEEK_TUNING_GENERATE_MODEL")
	setString(&cfg.Tuning.SuggestModel, "ONESEEK_TUNING_SUGGEST_MODEL")
	setString(&cfg.Tuning.DatasetsDir, "ONESEEK_TUNING_DATASETS_DIR")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Tuning.TargetSuccessRate < 0 || cfg.Tuning.TargetSuccessRate > 1 {
		return errors.New("tuning.target_success_rate must be in [0,1]")
	}
	if cfg.Tuning.MaxIterations < 1 {
		return errors.New("tuning.max_iterations must be >= 1")
	}
	if cfg.Tuning.Patience < 1 {
		return errors.New("tuning.patience must be >= 1")
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
