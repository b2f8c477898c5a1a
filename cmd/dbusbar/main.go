package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
	"github.com/danderson/dbusbar"
	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

type monitorFlags struct {
	Interface string `flag:"interface,DBus interface that emits the signal (required)"`
	Monitor   string `flag:"monitor,Name of the signal to monitor (required)"`
	Path      string `flag:"path,Only watch signals emitted by this object path"`
	Sender    string `flag:"sender,Only watch signals emitted by this bus name"`
	Status    string `flag:"status,Property to read at startup as 'service/path interface property'"`
	Bus       string `flag:"bus,default=auto,Bus to connect to: auto or session or system"`
	Address   string `flag:"address,Bus address to dial instead of the --bus default"`
	Retries   int    `flag:"retries,default=5,Number of attempts at connecting to the bus"`
}

var globalArgs monitorFlags

var booleanArgs struct {
	ReturnTrue  string `flag:"return-true,default=true,Text to print when the value is true"`
	ReturnFalse string `flag:"return-false,default=false,Text to print when the value is false"`
}

func main() {
	root := &command.C{
		Name:  "dbusbar",
		Usage: "--interface NAME --monitor SIGNAL [flags] type [type flags]",
		Help: `Monitor a DBus signal and print its value for a status bar.

Every time the signal fires, dbusbar prints one line to stdout
containing the signal's first argument, formatted according to the
chosen type. With --status, dbusbar also reads a property at startup
and prints its value, so that the status bar has something to display
before the first signal.

Diagnostics go to stderr. Set DBUSBAR_LOG=debug for more detail.

Example, showing the session lock state:

  dbusbar --interface org.freedesktop.ScreenSaver --monitor ActiveChanged \
    --status "org.freedesktop.ScreenSaver/org/freedesktop/ScreenSaver org.freedesktop.ScreenSaver Active" \
    boolean --return-true locked --return-false unlocked
`,
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:     "boolean",
				Usage:    "boolean [--return-true TEXT] [--return-false TEXT]",
				Help:     "Monitor a boolean value, printing one of two texts.",
				SetFlags: command.Flags(flax.MustBind, &booleanArgs),
				Run:      command.Adapt(runBoolean),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runBoolean(env *command.Env) error {
	return runMonitor(env, &dbusbar.Boolean{
		TrueText:  booleanArgs.ReturnTrue,
		FalseText: booleanArgs.ReturnFalse,
	})
}

func runMonitor(env *command.Env, h dbusbar.Handler) error {
	environ, err := loadEnvironment()
	if err != nil {
		return env.Usagef("reading environment: %v", err)
	}
	logger := newLogger(os.Stderr, environ.LogLevel)

	m, err := newMonitor(globalArgs, h, environ)
	if err != nil {
		return env.Usagef("%v", err)
	}
	m.Out = os.Stdout
	m.Logger = logger

	err = m.Run(env.Context())
	var cfgErr *dbusbar.ConfigError
	if errors.As(err, &cfgErr) {
		return env.Usagef("%v", err)
	}
	if err != nil {
		logger.Error("monitor failed", "error", err)
		return err
	}
	return nil
}

// newMonitor builds a Monitor from command line flags. It checks the
// configuration fully, so that bad flags fail before any connection
// to the bus is attempted.
func newMonitor(args monitorFlags, h dbusbar.Handler, environ environment) (*dbusbar.Monitor, error) {
	if args.Interface == "" {
		return nil, errors.New("--interface is required")
	}
	if args.Monitor == "" {
		return nil, errors.New("--monitor is required")
	}
	if args.Retries < 1 {
		return nil, fmt.Errorf("--retries must be at least 1, got %d", args.Retries)
	}

	bus, err := dbusbar.ParseBus(args.Bus)
	if err != nil {
		return nil, err
	}

	target := dbusbar.Target{
		Interface: args.Interface,
		Member:    args.Monitor,
	}
	if args.Path != "" {
		target.Path = value.Just(dbus.ObjectPath(args.Path))
	}
	if args.Sender != "" {
		target.Sender = value.Just(args.Sender)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	ret := &dbusbar.Monitor{
		Target:    target,
		Handler:   h,
		Bus:       bus,
		Address:   args.Address,
		Addresses: environ.Addresses,
		Retry:     dbusbar.DefaultRetryPolicy,
	}
	ret.Retry.Attempts = args.Retries

	if args.Status != "" {
		q, err := dbusbar.ParseStatusQuery(args.Status, args.Interface)
		if err != nil {
			return nil, err
		}
		ret.Status = value.Just(q)
	}

	return ret, nil
}
