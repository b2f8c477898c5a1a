package main

import (
	"io"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/danderson/dbusbar"
)

// environment is the configuration taken from environment variables.
type environment struct {
	// LogLevel is the minimum level of diagnostics written to
	// stderr. It has no effect on the monitor's output.
	LogLevel slog.Level `env:"DBUSBAR_LOG" envDefault:"WARN"`

	dbusbar.Addresses
}

func loadEnvironment() (environment, error) {
	return env.ParseAs[environment]()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	ret := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(ret)
	return ret
}
