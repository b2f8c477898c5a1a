package dbusbar

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"
)

// fakeSource is a signalSource fed by a channel. Closing the channel
// simulates losing the bus connection.
type fakeSource struct {
	ch chan *dbus.Signal
}

func newFakeSource(sigs ...*dbus.Signal) *fakeSource {
	ret := &fakeSource{ch: make(chan *dbus.Signal, 10)}
	for _, s := range sigs {
		ret.ch <- s
	}
	return ret
}

func (f *fakeSource) Next(ctx context.Context) (*dbus.Signal, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case sig, ok := <-f.ch:
		if !ok {
			return nil, &RecvError{ErrConnectionLost}
		}
		return sig, nil
	}
}

func idleSignal(body ...any) *dbus.Signal {
	return &dbus.Signal{
		Sender: ":1.7",
		Path:   "/org/example/Idle",
		Name:   "org.example.Idle.StatusChanged",
		Body:   body,
	}
}

func testMonitor(out *bytes.Buffer) *Monitor {
	return &Monitor{
		Target: Target{
			Interface: "org.example.Idle",
			Member:    "StatusChanged",
		},
		Handler: &Boolean{TrueText: "ON", FalseText: "OFF"},
		Out:     out,
		Logger:  discardLogger,
	}
}

// runLoop runs the monitor loop until src is exhausted, and returns
// the lines it wrote.
func runLoop(t *testing.T, m *Monitor, src *fakeSource, seed func(context.Context) (Value, error)) []string {
	t.Helper()
	close(src.ch)
	err := m.loop(context.Background(), src, seed)
	var re *RecvError
	if !errors.As(err, &re) {
		t.Fatalf("loop returned %v, want RecvError", err)
	}
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("loop error %v does not wrap ErrConnectionLost", err)
	}
	return lines(m.Out.(*bytes.Buffer))
}

func lines(b *bytes.Buffer) []string {
	var ret []string
	for _, l := range bytes.SplitAfter(b.Bytes(), []byte("\n")) {
		if len(l) > 0 {
			ret = append(ret, string(l))
		}
	}
	return ret
}

func TestMonitorSignals(t *testing.T) {
	var out bytes.Buffer
	src := newFakeSource(idleSignal(true), idleSignal(false))
	got := runLoop(t, testMonitor(&out), src, nil)
	want := []string{"ON\n", "OFF\n"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong output (-got+want):\n%s", diff)
	}
}

func TestMonitorNoDedup(t *testing.T) {
	var out bytes.Buffer
	src := newFakeSource(idleSignal(true), idleSignal(true), idleSignal(false), idleSignal(false))
	got := runLoop(t, testMonitor(&out), src, nil)
	want := []string{"ON\n", "ON\n", "OFF\n", "OFF\n"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong output (-got+want):\n%s", diff)
	}
}

func TestMonitorMalformedSignal(t *testing.T) {
	var out bytes.Buffer
	src := newFakeSource(
		idleSignal("true"),
		idleSignal(),
		idleSignal(int32(1)),
		idleSignal(true),
	)
	got := runLoop(t, testMonitor(&out), src, nil)
	want := []string{"ON\n"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong output (-got+want):\n%s", diff)
	}
}

func TestMonitorSeedFirst(t *testing.T) {
	var out bytes.Buffer
	src := newFakeSource()
	seed := func(context.Context) (Value, error) {
		// A signal arrives while the property read is in flight.
		src.ch <- idleSignal(true)
		close(src.ch)
		return BoolValue(false), nil
	}
	err := testMonitor(&out).loop(context.Background(), src, seed)
	var re *RecvError
	if !errors.As(err, &re) {
		t.Fatalf("loop returned %v, want RecvError", err)
	}
	want := []string{"OFF\n", "ON\n"}
	if diff := cmp.Diff(lines(&out), want); diff != "" {
		t.Errorf("wrong output (-got+want):\n%s", diff)
	}
}

func TestMonitorSeedFailure(t *testing.T) {
	tests := []struct {
		name string
		seed func(context.Context) (Value, error)
	}{
		{"missing property", func(context.Context) (Value, error) {
			return Value{}, dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownProperty"}
		}},
		{"wrong type", func(context.Context) (Value, error) {
			return DecodeVariant(dbus.MakeVariant("locked"), KindBoolean)
		}},
		{"timeout", func(ctx context.Context) (Value, error) {
			<-ctx.Done()
			return Value{}, ctx.Err()
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			m := testMonitor(&out)
			m.Status = value.Just(StatusQuery{
				Service:   "org.example.Idle",
				Path:      "/",
				Interface: "org.example.Idle",
				Property:  "Idle",
			})
			m.StatusTimeout = 10 * time.Millisecond
			src := newFakeSource(idleSignal(false))
			got := runLoop(t, m, src, tc.seed)
			want := []string{"OFF\n"}
			if diff := cmp.Diff(got, want); diff != "" {
				t.Errorf("wrong output (-got+want):\n%s", diff)
			}
		})
	}
}

func TestMonitorCanceled(t *testing.T) {
	var out bytes.Buffer
	m := testMonitor(&out)
	src := newFakeSource(idleSignal(true))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.loop(ctx, src, nil) }()

	// Wait for the first signal to be consumed, then cancel while
	// the loop is idle.
	for len(src.ch) > 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("loop returned %v after cancellation, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestMonitorWriteError(t *testing.T) {
	m := testMonitor(nil)
	m.Out = errWriter{}
	src := newFakeSource(idleSignal(true), idleSignal(false))
	err := m.loop(context.Background(), src, nil)
	if err == nil {
		t.Fatal("loop succeeded despite write error")
	}
	var re *RecvError
	if errors.As(err, &re) {
		t.Errorf("loop returned RecvError %v, want write error", err)
	}
}

type flushWriter struct {
	bytes.Buffer
	flushed []string
}

func (f *flushWriter) Flush() error {
	f.flushed = append(f.flushed, f.String())
	return nil
}

func TestMonitorFlush(t *testing.T) {
	m := testMonitor(nil)
	out := &flushWriter{}
	m.Out = out
	src := newFakeSource(idleSignal(true), idleSignal(false))
	close(src.ch)
	if err := m.loop(context.Background(), src, nil); err == nil {
		t.Fatal("loop returned nil, want RecvError")
	}
	want := []string{"ON\n", "ON\nOFF\n"}
	if diff := cmp.Diff(out.flushed, want); diff != "" {
		t.Errorf("output not flushed per line (-got+want):\n%s", diff)
	}
}

func TestMonitorConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Monitor)
	}{
		{"no handler", func(m *Monitor) { m.Handler = nil }},
		{"no output", func(m *Monitor) { m.Out = nil }},
		{"bad target", func(m *Monitor) { m.Target.Interface = "Idle" }},
		{"bad status", func(m *Monitor) {
			m.Status = value.Just(StatusQuery{Service: "org.example.Idle", Path: "relative", Interface: "org.example.Idle", Property: "Idle"})
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			m := testMonitor(&out)
			// An address that would fail loudly if dialed.
			m.Address = "unix:path=/nonexistent/dbusbar-test"
			tc.modify(m)
			err := m.Run(context.Background())
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Run() = %v, want ConfigError", err)
			}
			if out.Len() != 0 {
				t.Errorf("Run() wrote output %q on config error", out.String())
			}
		})
	}
}

func TestMonitorConnectError(t *testing.T) {
	var out bytes.Buffer
	m := testMonitor(&out)
	m.Address = "unix:path=/nonexistent/dbusbar-test"
	m.Retry = fastRetry
	err := m.Run(context.Background())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Run() = %v, want ConnectError", err)
	}
	if out.Len() != 0 {
		t.Errorf("Run() wrote output %q on connect error", out.String())
	}
}
