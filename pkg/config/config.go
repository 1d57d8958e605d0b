package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/telemetry"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "REGLEDGER_"

// Config is the regledger configuration file.
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger"`
	Driver    DriverConfig    `yaml:"driver"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LedgerConfig configures ledger storage.
type LedgerConfig struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns bounds the database connection pool. Zero picks a default.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// BusyTimeout is how long a commit waits for the write lock.
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`
}

// DriverConfig configures sessions and retries.
type DriverConfig struct {
	MaxSessions int                `yaml:"max_sessions" validate:"gte=1,lte=1024"`
	Retry       driver.RetryPolicy `yaml:"retry"`
}

// TelemetryConfig selects logging, tracing and metrics settings.
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" validate:"oneof=development production test"`
	LogLevel       string  `yaml:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat      string  `yaml:"log_format" validate:"oneof=console json"`
	TraceExporter  string  `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	TraceEndpoint  string  `yaml:"trace_endpoint" validate:"required_if=TraceExporter otlp"`
	SamplingRate   float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	MetricsAddress string  `yaml:"metrics_address"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Path:        "regledger.db",
			BusyTimeout: 5 * time.Second,
		},
		Driver: DriverConfig{
			MaxSessions: 16,
			Retry:       driver.DefaultRetryPolicy(),
		},
		Telemetry: TelemetryConfig{
			Environment:   "development",
			LogLevel:      "info",
			LogFormat:     "console",
			TraceExporter: "none",
			SamplingRate:  1.0,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies REGLEDGER_*
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return ledger.NewValidationError("invalid configuration", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LEDGER_PATH", &c.Ledger.Path)
	str("ENVIRONMENT", &c.Telemetry.Environment)
	str("LOG_LEVEL", &c.Telemetry.LogLevel)
	str("LOG_FORMAT", &c.Telemetry.LogFormat)
	str("TRACE_EXPORTER", &c.Telemetry.TraceExporter)
	str("TRACE_ENDPOINT", &c.Telemetry.TraceEndpoint)
	str("METRICS_ADDRESS", &c.Telemetry.MetricsAddress)

	ints := []struct {
		name string
		dst  *int
	}{
		{"MAX_SESSIONS", &c.Driver.MaxSessions},
		{"MAX_OPEN_CONNS", &c.Ledger.MaxOpenConns},
		{"RETRY_MAX_ATTEMPTS", &c.Driver.Retry.MaxAttempts},
	}
	for _, e := range ints {
		v, ok := lookup(EnvPrefix + e.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return ledger.NewValidationError(fmt.Sprintf("%s%s must be an integer", EnvPrefix, e.name), err)
		}
		*e.dst = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"BUSY_TIMEOUT", &c.Ledger.BusyTimeout},
		{"RETRY_BASE_DELAY", &c.Driver.Retry.BaseDelay},
		{"RETRY_MAX_DELAY", &c.Driver.Retry.MaxDelay},
	}
	for _, e := range durations {
		v, ok := lookup(EnvPrefix + e.name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return ledger.NewValidationError(fmt.Sprintf("%s%s must be a duration", EnvPrefix, e.name), err)
		}
		*e.dst = d
	}

	if v, ok := lookup(EnvPrefix + "METRICS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return ledger.NewValidationError(EnvPrefix+"METRICS_ENABLED must be a boolean", err)
		}
		c.Telemetry.MetricsEnabled = b
	}
	return nil
}

// LedgerOptions returns the storage settings for ledger.Open.
func (c *Config) LedgerOptions() ledger.Config {
	return ledger.Config{
		Path:         c.Ledger.Path,
		MaxOpenConns: c.Ledger.MaxOpenConns,
		BusyTimeout:  c.Ledger.BusyTimeout,
	}
}

// DriverOptions returns the driver options for driver.New.
func (c *Config) DriverOptions(tel *telemetry.Telemetry) []driver.Option {
	opts := []driver.Option{
		driver.WithMaxSessions(c.Driver.MaxSessions),
		driver.WithRetryPolicy(c.Driver.Retry),
	}
	if tel != nil {
		opts = append(opts, driver.WithTelemetry(tel))
	}
	return opts
}

// TelemetryConfig builds the telemetry configuration, starting from the
// preset for the configured environment.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.ForEnvironment(c.Telemetry.Environment)
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Logging.Level = c.Telemetry.LogLevel
	cfg.Logging.Format = c.Telemetry.LogFormat

	cfg.Tracing.Exporter = c.Telemetry.TraceExporter
	cfg.Tracing.Enabled = c.Telemetry.TraceExporter != "none"
	cfg.Tracing.Endpoint = c.Telemetry.TraceEndpoint
	cfg.Tracing.SamplingRate = c.Telemetry.SamplingRate

	cfg.Metrics.Enabled = c.Telemetry.MetricsEnabled
	cfg.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	return cfg
}
