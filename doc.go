// Package dbusbar turns a DBus signal into status bar output.
//
// A [Monitor] watches a single signal, identified by a [Target], and
// writes one line of text per received signal. The text is produced
// by a [Handler] from the signal's first argument, for example
// "locked"/"unlocked" for the boolean org.freedesktop.ScreenSaver
// ActiveChanged signal:
//
//	m := &dbusbar.Monitor{
//	    Target: dbusbar.Target{
//	        Interface: "org.freedesktop.ScreenSaver",
//	        Member:    "ActiveChanged",
//	    },
//	    Handler: &dbusbar.Boolean{TrueText: "locked", FalseText: "unlocked"},
//	    Out:     os.Stdout,
//	    Bus:     dbusbar.BusSession,
//	}
//	err := m.Run(ctx)
//
// Signals only report changes, so a Monitor can optionally read a
// property at startup with a [StatusQuery], to display the current
// state before the first signal arrives.
//
// Output lines only ever contain formatted values. Errors, including
// signals whose payload has the wrong type, are reported through
// log/slog.
package dbusbar
