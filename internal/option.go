package internal

import (
	"io"
	"time"

	"github.com/starford/synapse/internal/oracle"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	oracle    oracle.Oracle
	logOutput io.Writer
	now       func() time.Time
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOracle replaces the configured Gemini oracle.
func WithOracle(o oracle.Oracle) Option {
	return func(a *application) {
		a.oracle = o
	}
}

// WithLogOutput sets where JSON logs are written (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithClock overrides time.Now for filing, attachments and briefings.
func WithClock(now func() time.Time) Option {
	return func(a *application) {
		a.now = now
	}
}
