package driver

import (
	"github.com/regledger/regledger/pkg/telemetry"
)

// Option customizes a Driver.
type Option func(*Driver)

// WithMaxSessions bounds the number of sessions checked out at once.
func WithMaxSessions(n int) Option {
	return func(d *Driver) {
		d.maxSessions = n
	}
}

// WithRetryPolicy sets the retry policy for units of work.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *Driver) {
		d.policy = p
	}
}

// WithTelemetry sets the logger, tracer and metrics the driver reports to.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *Driver) {
		d.tel = tel
	}
}

// ExecuteOption customizes a single Execute call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	name    string
	onRetry func(RetryEvent)
}

// WithName labels the unit of work in logs and traces.
func WithName(name string) ExecuteOption {
	return func(c *executeConfig) {
		c.name = name
	}
}

// WithRetryNotify registers a callback invoked before every retry.
func WithRetryNotify(fn func(RetryEvent)) ExecuteOption {
	return func(c *executeConfig) {
		c.onRetry = fn
	}
}
