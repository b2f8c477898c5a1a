package dbusbar

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Subscribe asks the bus to deliver target's signals to conn, and
// returns a Subscription that yields them.
//
// conn should come from [Dial] or [DialAddress], so that signals are
// delivered in order and none are dropped while the caller is busy.
func Subscribe(ctx context.Context, conn *dbus.Conn, target Target) (*Subscription, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	opts := target.matchOptions()
	if err := conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return nil, fmt.Errorf("adding match rule %s: %w", target.Rule(), err)
	}
	ret := &Subscription{
		conn:    conn,
		target:  target,
		opts:    opts,
		signals: make(chan *dbus.Signal),
	}
	conn.Signal(ret.signals)
	return ret, nil
}

// A Subscription delivers the signals of a single [Target].
type Subscription struct {
	conn    *dbus.Conn
	target  Target
	opts    []dbus.MatchOption
	signals chan *dbus.Signal
}

// Target returns the signal that s delivers.
func (s *Subscription) Target() Target { return s.target }

// Next waits for the next matching signal.
//
// Next returns a [*RecvError] if the bus connection is lost, and
// ctx.Err() if ctx is canceled first. There is no timeout: a signal
// that never fires is not an error.
func (s *Subscription) Next(ctx context.Context) (*dbus.Signal, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sig, ok := <-s.signals:
			if !ok {
				if err := ctx.Err(); err != nil {
					// Closing the connection was our own doing.
					return nil, err
				}
				return nil, &RecvError{ErrConnectionLost}
			}
			if !s.target.matches(sig) {
				continue
			}
			return sig, nil
		}
	}
}

// Close removes the subscription's match rule from the bus. The
// underlying connection stays open.
func (s *Subscription) Close() error {
	s.conn.RemoveSignal(s.signals)
	if !s.conn.Connected() {
		return nil
	}
	return s.conn.RemoveMatchSignal(s.opts...)
}
