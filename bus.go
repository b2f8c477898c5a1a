package dbusbar

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// Bus selects which message bus to connect to.
type Bus int

const (
	// BusAuto tries the session bus, then falls back to the system
	// bus.
	BusAuto Bus = iota
	BusSession
	BusSystem
)

func (b Bus) String() string {
	switch b {
	case BusAuto:
		return "auto"
	case BusSession:
		return "session"
	case BusSystem:
		return "system"
	default:
		return fmt.Sprintf("Bus(%d)", int(b))
	}
}

// ParseBus parses a bus name as accepted by the --bus flag.
func ParseBus(s string) (Bus, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return BusAuto, nil
	case "session", "user":
		return BusSession, nil
	case "system":
		return BusSystem, nil
	default:
		return 0, configErr("bus", "unknown bus %q, want one of auto, session, system", s)
	}
}

const defaultSystemBusAddress = "unix:path=/run/dbus/system_bus_socket"

// Addresses holds the bus addresses advertised by the environment.
type Addresses struct {
	Session    string `env:"DBUS_SESSION_BUS_ADDRESS"`
	System     string `env:"DBUS_SYSTEM_BUS_ADDRESS"`
	RuntimeDir string `env:"XDG_RUNTIME_DIR"`
}

// SessionAddress returns the address of the current user's session
// bus.
//
// If DBUS_SESSION_BUS_ADDRESS is unset, SessionAddress looks for the
// conventional socket in the user's runtime directory.
func (a Addresses) SessionAddress() (string, error) {
	if a.Session != "" {
		return a.Session, nil
	}
	dir := a.RuntimeDir
	if dir == "" {
		dir = filepath.Join("/run/user", strconv.Itoa(unix.Getuid()))
	}
	sock := filepath.Join(dir, "bus")
	if err := unix.Access(sock, unix.R_OK|unix.W_OK); err != nil {
		return "", fmt.Errorf("session bus not available: DBUS_SESSION_BUS_ADDRESS is unset and %s is not usable: %w", sock, err)
	}
	return "unix:path=" + sock, nil
}

// SystemAddress returns the address of the system bus.
func (a Addresses) SystemAddress() string {
	if a.System != "" {
		return a.System
	}
	return defaultSystemBusAddress
}

// Dial connects to the requested bus.
//
// The returned connection delivers signals strictly in the order the
// bus sent them.
func Dial(ctx context.Context, bus Bus, addrs Addresses) (*dbus.Conn, error) {
	switch bus {
	case BusSession:
		addr, err := addrs.SessionAddress()
		if err != nil {
			return nil, &ConnectError{Bus: bus, Err: err}
		}
		return DialAddress(ctx, bus, addr)
	case BusSystem:
		return DialAddress(ctx, bus, addrs.SystemAddress())
	case BusAuto:
		conn, sessErr := Dial(ctx, BusSession, addrs)
		if sessErr == nil {
			return conn, nil
		}
		conn, sysErr := Dial(ctx, BusSystem, addrs)
		if sysErr == nil {
			return conn, nil
		}
		return nil, &ConnectError{Bus: bus, Err: errors.Join(sessErr, sysErr)}
	default:
		return nil, &ConnectError{Bus: bus, Err: errors.New("unknown bus")}
	}
}

// DialAddress connects to the bus at addr. bus is only used to
// describe the connection in errors.
func DialAddress(ctx context.Context, bus Bus, addr string) (*dbus.Conn, error) {
	conn, err := dbus.Connect(addr,
		dbus.WithContext(ctx),
		dbus.WithSignalHandler(dbus.NewSequentialSignalHandler()))
	if err != nil {
		return nil, &ConnectError{Bus: bus, Address: addr, Err: err}
	}
	return conn, nil
}
