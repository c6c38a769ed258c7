// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Index backends accepted by PRISM_INDEX.
const (
	IndexNone     = ""
	IndexSQLite   = "sqlite"
	IndexPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration // Must outlast RunTimeout so a full run can be written back.
	MaxRequestBodyBytes int64
	MCPEnabled          bool

	// Evaluation settings.
	RunTimeout     time.Duration
	MaxModels      int
	MaxPromptChars int
	CatalogTTL     time.Duration
	MockDelayScale float64

	// Run storage.
	RunsDir     string
	Index       string // "", "sqlite" or "postgres".
	SQLitePath  string
	DatabaseURL string

	// Providers.
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModels     []string
	OpenAIMaxRetries int
	OpenAITimeout    time.Duration
	AnthropicAPIKey  string
	AnthropicModels  []string
	OllamaURL        string
	OllamaModels     []string
	ProvidersFile    string // Optional YAML catalog, see LoadCatalog.

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not only the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		RunsDir:         envStr("PRISM_RUNS_DIR", "runs"),
		Index:           strings.ToLower(envStr("PRISM_INDEX", IndexNone)),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   envStr("OPENAI_BASE_URL", ""),
		OpenAIModels:    envList("OPENAI_MODELS"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModels: envList("ANTHROPIC_MODELS"),
		OllamaURL:       envStr("OLLAMA_URL", ""),
		OllamaModels:    envList("OLLAMA_MODELS"),
		ProvidersFile:   envStr("PRISM_PROVIDERS_FILE", ""),
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "prism"),
		LogLevel:        envStr("PRISM_LOG_LEVEL", "info"),
	}
	cfg.SQLitePath = envStr("PRISM_SQLITE_PATH", filepath.Join(cfg.RunsDir, "index.db"))

	var err error
	cfg.Port, err = envInt("PRISM_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("PRISM_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("PRISM_WRITE_TIMEOUT", 150*time.Second)
	collect(err)
	var maxBody int
	maxBody, err = envInt("PRISM_MAX_REQUEST_BODY_BYTES", 1*1024*1024)
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)
	cfg.MCPEnabled, err = envBool("PRISM_MCP_ENABLED", true)
	collect(err)

	var runTimeoutS float64
	runTimeoutS, err = envFloat("PRISM_RUN_TIMEOUT_S", 30)
	collect(err)
	cfg.RunTimeout = time.Duration(runTimeoutS * float64(time.Second))
	cfg.MaxModels, err = envInt("PRISM_MAX_MODELS", 6)
	collect(err)
	cfg.MaxPromptChars, err = envInt("PRISM_MAX_PROMPT_CHARS", 8000)
	collect(err)
	cfg.CatalogTTL, err = envDuration("PRISM_CATALOG_TTL", 30*time.Second)
	collect(err)
	cfg.MockDelayScale, err = envFloat("PRISM_MOCK_DELAY_SCALE", 1)
	collect(err)

	cfg.OpenAIMaxRetries, err = envInt("OPENAI_MAX_RETRIES", 2)
	collect(err)
	cfg.OpenAITimeout, err = envDuration("OPENAI_TIMEOUT", 20*time.Second)
	collect(err)

	cfg.RateLimitEnabled, err = envBool("PRISM_RATE_LIMIT_ENABLED", false)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("PRISM_RATE_LIMIT_RPS", 5)
	collect(err)
	cfg.RateLimitBurst, err = envInt("PRISM_RATE_LIMIT_BURST", 10)
	collect(err)

	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PRISM_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("PRISM_RUN_TIMEOUT_S must be positive"))
	}
	if c.WriteTimeout <= c.RunTimeout {
		errs = append(errs, fmt.Errorf("PRISM_WRITE_TIMEOUT (%s) must exceed the run timeout (%s)", c.WriteTimeout, c.RunTimeout))
	}
	if c.MaxModels <= 0 {
		errs = append(errs, errors.New("PRISM_MAX_MODELS must be positive"))
	}
	if c.MaxPromptChars <= 0 {
		errs = append(errs, errors.New("PRISM_MAX_PROMPT_CHARS must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("PRISM_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.MockDelayScale < 0 {
		errs = append(errs, errors.New("PRISM_MOCK_DELAY_SCALE must not be negative"))
	}
	if c.OpenAIMaxRetries < 0 {
		errs = append(errs, errors.New("OPENAI_MAX_RETRIES must not be negative"))
	}
	if c.RunsDir == "" {
		errs = append(errs, errors.New("PRISM_RUNS_DIR is required"))
	}
	switch c.Index {
	case IndexNone, IndexSQLite:
	case IndexPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when PRISM_INDEX=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("PRISM_INDEX must be one of sqlite, postgres or empty, got %q", c.Index))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("PRISM_RATE_LIMIT_RPS and PRISM_RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
