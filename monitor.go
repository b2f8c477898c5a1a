package dbusbar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/godbus/dbus/v5"
	"github.com/kr/pretty"
)

// DefaultStatusTimeout bounds the startup property read.
const DefaultStatusTimeout = 5 * time.Second

// Monitor watches one signal and writes its formatted value to Out,
// one line per signal.
type Monitor struct {
	// Target is the signal to watch.
	Target Target
	// Status, if present, is read once at startup to produce an
	// initial line of output before any signal arrives.
	Status value.Maybe[StatusQuery]
	// Handler formats values for output.
	Handler Handler
	// Out receives formatted values. If Out has a Flush method, it is
	// called after every line.
	Out io.Writer

	// Bus selects the bus to connect to.
	Bus Bus
	// Address, if non-empty, is dialed instead of the bus's usual
	// address.
	Address string
	// Addresses are the bus addresses advertised by the
	// environment.
	Addresses Addresses
	// Retry controls retries of the initial bus connection. The zero
	// value makes a single attempt.
	Retry RetryPolicy
	// StatusTimeout bounds the startup property read. Zero means
	// DefaultStatusTimeout.
	StatusTimeout time.Duration

	// Logger receives diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Monitor) validate() error {
	if m.Handler == nil {
		return configErr("handler", "no value type handler configured")
	}
	if m.Out == nil {
		return configErr("output", "no output configured")
	}
	if err := m.Target.Validate(); err != nil {
		return err
	}
	if q, ok := m.Status.GetOK(); ok {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) dial(ctx context.Context) (*dbus.Conn, error) {
	if m.Address != "" {
		return DialAddress(ctx, m.Bus, m.Address)
	}
	return Dial(ctx, m.Bus, m.Addresses)
}

// Run connects to the bus and emits formatted signal values until ctx
// is canceled or the bus connection is lost.
//
// Run returns nil if ctx is canceled. Otherwise it returns a
// [*ConfigError] or [*ConnectError] if monitoring could not start, a
// [*RecvError] if the connection was lost, or the error from writing
// to Out.
//
// If a StatusQuery is configured, its value is always emitted before
// any signal's value. Failing to read the status is logged and
// otherwise ignored.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.validate(); err != nil {
		return err
	}
	logger := m.logger()

	conn, err := retry(ctx, m.Retry, logger, "bus connection", m.dial)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer conn.Close()
	logger.Debug("connected to bus", "bus", m.Bus, "names", conn.Names())

	// Subscribe before reading the status, so that signals fired
	// during the read queue up behind it rather than get lost.
	sub, err := Subscribe(ctx, conn, m.Target)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()
	logger.Debug("watching for signals", "rule", sub.Target().Rule())

	var seed func(context.Context) (Value, error)
	if q, ok := m.Status.GetOK(); ok {
		seed = func(ctx context.Context) (Value, error) {
			return Resolve(ctx, conn, q, m.Handler.Kind())
		}
	}
	return m.loop(ctx, sub, seed)
}

// signalSource is the part of [*Subscription] that the monitor loop
// uses.
type signalSource interface {
	Next(context.Context) (*dbus.Signal, error)
}

func (m *Monitor) loop(ctx context.Context, src signalSource, seed func(context.Context) (Value, error)) error {
	logger := m.logger()

	if seed != nil {
		timeout := m.StatusTimeout
		if timeout <= 0 {
			timeout = DefaultStatusTimeout
		}
		seedCtx, cancel := context.WithTimeout(ctx, timeout)
		v, err := seed(seedCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("could not read initial status, waiting for first signal", "status", m.Status.Get(), "error", err)
		} else if err := m.emit(v); err != nil {
			return err
		}
	}

	for {
		sig, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("monitor stopped", "reason", context.Cause(ctx))
				return nil
			}
			return err
		}

		v, err := Decode(sig.Body, m.Handler.Kind())
		if err != nil {
			logger.Warn("ignoring malformed signal", "signal", sig.Name, "sender", sig.Sender, "path", sig.Path, "error", err)
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Debug("malformed signal body", "body", pretty.Sprint(sig.Body))
			}
			continue
		}
		logger.Debug("received signal", "signal", sig.Name, "sender", sig.Sender, "value", v)
		if err := m.emit(v); err != nil {
			return err
		}
	}
}

// emit writes v's display text to m.Out as a single line.
func (m *Monitor) emit(v Value) error {
	if _, err := fmt.Fprintln(m.Out, m.Handler.Format(v)); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if f, ok := m.Out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flushing output: %w", err)
		}
	}
	return nil
}
