package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-quality.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Catalog database (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Analysis thresholds and caps
	Analysis AnalysisConfig `yaml:"analysis"`

	// Fix-suggestion model
	LLM LLMConfig `yaml:"llm"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_quality"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AnalysisConfig holds the tunables of profiling, analysis, drift and lineage.
type AnalysisConfig struct {
	// DriftThreshold is the relative change above which a metric has drifted.
	DriftThreshold float64 `yaml:"drift_threshold" env:"DQ_DRIFT_THRESHOLD" env-default:"0.2"`
	HistogramBins  int     `yaml:"histogram_bins" env:"DQ_HISTOGRAM_BINS" env-default:"10"`
	SampleValueCap int     `yaml:"sample_value_cap" env:"DQ_SAMPLE_VALUE_CAP" env-default:"10"`
	// LineageMaxDepth bounds upstream/downstream traversals.
	LineageMaxDepth int `yaml:"lineage_max_depth" env:"DQ_LINEAGE_MAX_DEPTH" env-default:"10"`
	// DeduplicateIssues skips re-reporting a defect that is still open.
	DeduplicateIssues bool `yaml:"deduplicate_issues" env:"DQ_DEDUPLICATE_ISSUES" env-default:"true"`
}

// LLM providers.
const (
	LLMProviderStub      = "stub"
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// LLMConfig selects and configures the fix-suggestion generator.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"stub"`
	// Endpoint is an OpenAI-compatible base URL; empty uses the provider default.
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// MetricsConfig holds Prometheus export settings.
type MetricsConfig struct {
	// TextfilePath receives the registry in text exposition format after each command.
	TextfilePath string `yaml:"textfile_path" env:"DQ_METRICS_TEXTFILE" env-default:""`
}

// Load reads configuration from the YAML file at path with environment
// variable overrides. A missing file is not an error: configuration then
// comes from the environment and defaults alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}
	if path == "" {
		path = DefaultPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, os.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	a := c.Analysis
	if a.DriftThreshold <= 0 {
		return fmt.Errorf("drift_threshold must be > 0, got %v", a.DriftThreshold)
	}
	if a.HistogramBins < 1 {
		return fmt.Errorf("histogram_bins must be >= 1, got %d", a.HistogramBins)
	}
	if a.SampleValueCap < 1 {
		return fmt.Errorf("sample_value_cap must be >= 1, got %d", a.SampleValueCap)
	}
	if a.LineageMaxDepth < 1 {
		return fmt.Errorf("lineage_max_depth must be >= 1, got %d", a.LineageMaxDepth)
	}

	switch c.LLM.Provider {
	case LLMProviderStub, LLMProviderOpenAI, LLMProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// URL returns a PostgreSQL connection URL suitable for pgx and golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
