package dbusbar

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ConfigError is the error returned when the monitor's configuration
// is invalid. Configuration errors are detected before any bus
// interaction, and are never worth retrying.
type ConfigError struct {
	// Option is the name of the offending setting, for example
	// "interface" or "status".
	Option string
	// Reason explains what is wrong with the setting.
	Reason error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Option, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Reason
}

func configErr(option, reason string, args ...any) error {
	return &ConfigError{option, fmt.Errorf(reason, args...)}
}

// ConnectError is the error returned when no bus connection could be
// established.
type ConnectError struct {
	// Bus is the bus that was being dialed.
	Bus Bus
	// Address is the bus address that was dialed, if one could be
	// determined.
	Address string
	// Err is the underlying failure.
	Err error
}

func (e *ConnectError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("connecting to %s bus: %s", e.Bus, e.Err)
	}
	return fmt.Sprintf("connecting to %s bus at %q: %s", e.Bus, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// DecodeError is the error returned when a message body or property
// value does not have the shape a [Handler] expects.
type DecodeError struct {
	// Want is the kind of value that was expected.
	Want Kind
	// Got is the DBus signature of the value that was received. It is
	// empty if the message had no body.
	Got dbus.Signature
}

func (e *DecodeError) Error() string {
	if e.Got.Empty() {
		return fmt.Sprintf("type mismatch: want %s, got empty body", e.Want)
	}
	return fmt.Sprintf("type mismatch: want %s, got signature %q", e.Want, e.Got)
}

// ErrConnectionLost is reported by [RecvError] when the bus
// connection closed while waiting for signals.
var ErrConnectionLost = errors.New("bus connection lost")

// RecvError is the error returned when a [Subscription] can no longer
// deliver signals.
type RecvError struct {
	Err error
}

func (e *RecvError) Error() string {
	return fmt.Sprintf("receiving signals: %s", e.Err)
}

func (e *RecvError) Unwrap() error {
	return e.Err
}
