package dbusbar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creachadair/mds/value"
	"github.com/godbus/dbus/v5"
)

// Target is the signal that a [Monitor] watches.
type Target struct {
	// Interface is the DBus interface that emits the signal.
	Interface string
	// Member is the name of the signal.
	Member string
	// Path restricts the match to signals emitted by a single
	// object. If absent, signals from any object match.
	Path value.Maybe[dbus.ObjectPath]
	// Sender restricts the match to signals emitted by a single bus
	// peer. If absent, signals from any peer match.
	Sender value.Maybe[string]
}

// Validate reports whether t is a well-formed signal target.
func (t Target) Validate() error {
	if err := validInterface(t.Interface); err != nil {
		return &ConfigError{"interface", err}
	}
	if err := validMember(t.Member); err != nil {
		return &ConfigError{"monitor", err}
	}
	if p, ok := t.Path.GetOK(); ok && !p.IsValid() {
		return configErr("path", "%q is not a valid object path", p)
	}
	if s, ok := t.Sender.GetOK(); ok {
		if err := validBusName(s); err != nil {
			return &ConfigError{"sender", err}
		}
	}
	return nil
}

// Name returns the fully qualified signal name, as godbus reports it
// in [dbus.Signal].
func (t Target) Name() string {
	return t.Interface + "." + t.Member
}

func (t Target) String() string {
	return t.Rule()
}

// Rule returns the match rule that the bus daemon applies on behalf
// of the monitor.
func (t Target) Rule() string {
	ms := []string{"type='signal'"}
	for _, f := range t.matchFields() {
		ms = append(ms, fmt.Sprintf("%s=%s", f.key, escapeMatchArg(f.value)))
	}
	return strings.Join(ms, ",")
}

// A matchField is one key=value clause of a match rule.
type matchField struct {
	key, value string
}

// matchFields returns the clauses of t's match rule, minus the
// type='signal' that godbus adds itself. Both Rule and matchOptions
// render these, so the logged rule is the one sent to the bus.
func (t Target) matchFields() []matchField {
	var ret []matchField
	if s, ok := t.Sender.GetOK(); ok {
		ret = append(ret, matchField{"sender", s})
	}
	if p, ok := t.Path.GetOK(); ok {
		ret = append(ret, matchField{"path", string(p)})
	}
	return append(ret,
		matchField{"interface", t.Interface},
		matchField{"member", t.Member},
	)
}

func (t Target) matchOptions() []dbus.MatchOption {
	var ret []dbus.MatchOption
	for _, f := range t.matchFields() {
		ret = append(ret, dbus.WithMatchOption(f.key, f.value))
	}
	return ret
}

// matches reports whether sig is an instance of the target signal.
//
// A connection receives a single stream of signals, which includes
// signals the bus sends us unprompted (NameAcquired and friends) as
// well as those selected by our match rule. Subscriptions need to
// weed out the former.
func (t Target) matches(sig *dbus.Signal) bool {
	if sig.Name != t.Name() {
		return false
	}
	if p, ok := t.Path.GetOK(); ok && sig.Path != p {
		return false
	}
	// The bus rewrites well-known sender names in match rules to the
	// owner's unique name, and stamps signals with the unique name,
	// so only unique names can be compared here.
	if s, ok := t.Sender.GetOK(); ok && strings.HasPrefix(s, ":") && sig.Sender != s {
		return false
	}
	return true
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", "'\\''")
	return "'" + s + "'"
}

// StatusQuery is a property read that seeds the monitor's output
// before the first signal arrives.
type StatusQuery struct {
	// Service is the bus name of the peer that owns the property.
	Service string
	// Path is the object that owns the property.
	Path dbus.ObjectPath
	// Interface is the interface the property belongs to.
	Interface string
	// Property is the name of the property.
	Property string
}

func (q StatusQuery) String() string {
	return fmt.Sprintf("%s%s %s.%s", q.Service, q.Path, q.Interface, q.Property)
}

// ParseStatusQuery parses a status query of the form
//
//	"<service_or_path> <interface> <property>"
//
// The first field names the peer and object to query, as a bus name
// optionally followed by an object path ("org.example.Foo/org/example/Foo"),
// or an object path alone ("/org/example/Foo"). If the path is
// omitted, it defaults to "/". If the bus name is omitted, it
// defaults to defaultService.
func ParseStatusQuery(s, defaultService string) (StatusQuery, error) {
	fs := strings.Fields(s)
	if len(fs) != 3 {
		return StatusQuery{}, configErr("status", "%q must have exactly 3 space-separated fields (service/path, interface, property), got %d", s, len(fs))
	}
	ret := StatusQuery{
		Service:   fs[0],
		Path:      "/",
		Interface: fs[1],
		Property:  fs[2],
	}
	if i := strings.IndexByte(fs[0], '/'); i >= 0 {
		ret.Service, ret.Path = fs[0][:i], dbus.ObjectPath(fs[0][i:])
	}
	if ret.Service == "" {
		ret.Service = defaultService
	}
	if err := ret.Validate(); err != nil {
		return StatusQuery{}, err
	}
	return ret, nil
}

// Validate reports whether q is a well-formed property read.
func (q StatusQuery) Validate() error {
	if err := validBusName(q.Service); err != nil {
		return &ConfigError{"status service", err}
	}
	if !q.Path.IsValid() {
		return configErr("status path", "%q is not a valid object path", q.Path)
	}
	if err := validInterface(q.Interface); err != nil {
		return &ConfigError{"status interface", err}
	}
	if err := validMember(q.Property); err != nil {
		return &ConfigError{"status property", err}
	}
	return nil
}

const maxNameLen = 255

func validInterface(s string) error {
	switch {
	case s == "":
		return errors.New("interface name is empty")
	case len(s) > maxNameLen:
		return fmt.Errorf("interface name %q is longer than %d bytes", s, maxNameLen)
	case !strings.Contains(s, "."):
		return fmt.Errorf("interface name %q must have at least two dot-separated elements", s)
	}
	for _, elt := range strings.Split(s, ".") {
		if !validElement(elt, false) {
			return fmt.Errorf("interface name %q has invalid element %q", s, elt)
		}
	}
	return nil
}

func validMember(s string) error {
	switch {
	case s == "":
		return errors.New("member name is empty")
	case len(s) > maxNameLen:
		return fmt.Errorf("member name %q is longer than %d bytes", s, maxNameLen)
	case !validElement(s, false):
		return fmt.Errorf("member name %q must contain only [A-Za-z0-9_] and not start with a digit", s)
	}
	return nil
}

func validBusName(s string) error {
	switch {
	case s == "":
		return errors.New("bus name is empty")
	case len(s) > maxNameLen:
		return fmt.Errorf("bus name %q is longer than %d bytes", s, maxNameLen)
	}
	unique := strings.HasPrefix(s, ":")
	elts := strings.Split(strings.TrimPrefix(s, ":"), ".")
	if len(elts) < 2 {
		return fmt.Errorf("bus name %q must have at least two dot-separated elements", s)
	}
	for _, elt := range elts {
		if !validElement(elt, true) || (!unique && elt[0] >= '0' && elt[0] <= '9') {
			return fmt.Errorf("bus name %q has invalid element %q", s, elt)
		}
	}
	return nil
}

// validElement reports whether s is a valid element of a dotted DBus
// name. Bus names additionally allow '-' and leading digits, which
// callers check for themselves.
func validElement(s string, busName bool) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 && !busName {
				return false
			}
		case r == '-' && busName:
		default:
			return false
		}
	}
	return true
}
