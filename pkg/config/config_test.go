package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "regledger.db", cfg.Ledger.Path)
	assert.Equal(t, 16, cfg.Driver.MaxSessions)
	assert.Equal(t, driver.DefaultRetryPolicy(), cfg.Driver.Retry)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load("testdata/regledger.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/regledger/ledger.db", cfg.Ledger.Path)
	assert.Equal(t, 2*time.Second, cfg.Ledger.BusyTimeout)
	assert.Equal(t, 4, cfg.Driver.MaxSessions)
	assert.Equal(t, driver.RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Multiplier:  1.5,
		Jitter:      0.2,
	}, cfg.Driver.Retry)

	tel := cfg.TelemetryConfig("1.2.3")
	require.NoError(t, tel.Validate())
	assert.Equal(t, "1.2.3", tel.ServiceVersion)
	assert.Equal(t, "production", tel.Environment)
	assert.Equal(t, "warn", tel.Logging.Level)
	assert.True(t, tel.Tracing.Enabled)
	assert.Equal(t, "collector:4317", tel.Tracing.Endpoint)
	assert.Equal(t, 0.5, tel.Tracing.SamplingRate)
	assert.True(t, tel.Metrics.Enabled)
	assert.Equal(t, ":9464", tel.Metrics.ListenAddress)

	lc := cfg.LedgerOptions()
	assert.Equal(t, cfg.Ledger.Path, lc.Path)
	assert.Len(t, cfg.DriverOptions(nil), 2)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REGLEDGER_LEDGER_PATH", ":memory:")
	t.Setenv("REGLEDGER_MAX_SESSIONS", "2")
	t.Setenv("REGLEDGER_RETRY_MAX_ATTEMPTS", "9")
	t.Setenv("REGLEDGER_RETRY_BASE_DELAY", "1ms")
	t.Setenv("REGLEDGER_LOG_LEVEL", "debug")
	t.Setenv("REGLEDGER_METRICS_ENABLED", "true")

	cfg, err := Load("testdata/regledger.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Ledger.Path)
	assert.Equal(t, 2, cfg.Driver.MaxSessions)
	assert.Equal(t, 9, cfg.Driver.Retry.MaxAttempts)
	assert.Equal(t, time.Millisecond, cfg.Driver.Retry.BaseDelay)
	assert.Equal(t, "debug", cfg.Telemetry.LogLevel)
	assert.True(t, cfg.Telemetry.MetricsEnabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "bad int", env: map[string]string{"REGLEDGER_MAX_SESSIONS": "many"}},
		{name: "bad duration", env: map[string]string{"REGLEDGER_BUSY_TIMEOUT": "soon"}},
		{name: "bad bool", env: map[string]string{"REGLEDGER_METRICS_ENABLED": "maybe"}},
		{name: "zero sessions", yaml: "driver:\n  max_sessions: 0\n"},
		{name: "zero attempts", yaml: "driver:\n  max_sessions: 1\n  retry:\n    max_attempts: 0\n"},
		{name: "bad level", yaml: "telemetry:\n  log_level: loud\n"},
		{name: "otlp without endpoint", yaml: "telemetry:\n  trace_exporter: otlp\n"},
		{name: "empty path", yaml: "ledger:\n  path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = filepath.Join(t.TempDir(), "regledger.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, ledger.IsValidation(err), "got %v", err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.Error(t, err)
}
