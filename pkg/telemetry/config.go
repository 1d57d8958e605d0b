package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config selects how regledger logs, traces and counts ledger activity.
type Config struct {
	ServiceName    string `validate:"required"`
	ServiceVersion string `validate:"required"`

	// Environment is reported on every span (development, production, test).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn error fatal"`
	Format string `validate:"oneof=console json"`

	// Output is stdout, stderr or a file path opened for appending.
	Output string

	// Caller adds file:line to every entry.
	Caller bool

	TimeFormat string `validate:"omitempty,oneof=rfc3339 unix unixms unixmicro"`

	// Sampling thins out high-volume entries such as per-statement traces.
	// Nil logs everything.
	Sampling *LogSampling
}

// LogSampling keeps the first Burst entries of every second, then one in
// every Every.
type LogSampling struct {
	Burst uint32 `validate:"gte=1"`
	Every uint32 `validate:"gte=1"`
}

// TracingConfig configures OpenTelemetry spans for units of work, attempts
// and workflows.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp (gRPC), stdout or none. With none, spans are
	// created but never exported.
	Exporter string `validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector, e.g. "localhost:4317".
	Endpoint string

	SamplingRate float64 `validate:"gte=0,lte=1"`

	MaxExportBatchSize int
	ExportTimeout      time.Duration
	Headers            map[string]string

	// Insecure dials the collector without TLS.
	Insecure bool
}

// MetricsConfig configures the Prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	Enabled bool

	// ListenAddress serves Path when set. Empty keeps the registry
	// in-process only.
	ListenAddress string
	Path          string `validate:"omitempty,startswith=/"`
	Namespace     string

	// DefaultHistogramBuckets are latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig logs info to stderr on the console and leaves tracing and
// metrics off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "regledger",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			Caller:     true,
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			ListenAddress:           ":9090",
			Path:                    "/metrics",
			Namespace:               "regledger",
			DefaultHistogramBuckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	}
}

// ProductionConfig writes sampled JSON logs, exports 10% of traces over
// OTLP with TLS and serves metrics.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.TimeFormat = "unix"
	cfg.Logging.Sampling = &LogSampling{Burst: 100, Every: 100}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	cfg.Metrics.Enabled = true
	return cfg
}

// TestConfig returns a quiet configuration for tests: errors only, no
// tracing, and metrics on a private registry with no HTTP listener.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"
	cfg.Logging.Caller = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ""
	return cfg
}

// ForEnvironment returns the preset for environment, falling back to
// DefaultConfig for anything but production and test.
func ForEnvironment(environment string) *Config {
	switch environment {
	case "production":
		return ProductionConfig()
	case "test":
		return TestConfig()
	default:
		cfg := DefaultConfig()
		if environment != "" {
			cfg.Environment = environment
		}
		return cfg
	}
}

var validate = validator.New()

var fieldProblems = map[string]string{
	"Config.ServiceName":          "service name is required",
	"Config.ServiceVersion":       "service version is required",
	"Config.Logging.Level":        "invalid log level",
	"Config.Logging.Format":       "invalid log format (must be console or json)",
	"Config.Logging.TimeFormat":   "invalid log time format",
	"Config.Logging.Sampling":     "log sampling burst and interval must be positive",
	"Config.Tracing.Exporter":     "invalid trace exporter",
	"Config.Tracing.SamplingRate": "trace sampling rate must be between 0 and 1",
	"Config.Metrics.Path":         "metrics path must start with '/'",
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	fe := fields[0]
	ns := fe.StructNamespace()
	problem, ok := fieldProblems[ns]
	if !ok {
		// nested sampling fields share their parent's message
		if i := strings.LastIndex(ns, "."); i > 0 {
			problem, ok = fieldProblems[ns[:i]]
		}
	}
	if !ok {
		problem = "invalid " + ns
	}
	return fmt.Errorf("%s: %v", problem, fe.Value())
}
