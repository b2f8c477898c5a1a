package dbusbar

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Kind identifies the shape of a [Value].
type Kind int

const (
	KindInvalid Kind = iota
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a normalized value read off the bus.
//
// A Value carries exactly one variant, identified by its Kind. The
// zero Value is invalid.
type Value struct {
	kind Kind
	b    bool
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	return Value{kind: KindBoolean, b: b}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Bool returns v's boolean value. ok is false if v is not a boolean.
func (v Value) Bool() (b bool, ok bool) {
	return v.b, v.kind == KindBoolean
}

func (v Value) String() string {
	switch v.kind {
	case KindBoolean:
		return fmt.Sprint(v.b)
	default:
		return "<invalid>"
	}
}

// Decode converts the first argument of a message body into a Value
// of the requested kind.
//
// A first argument of type VARIANT is unwrapped once before
// conversion. Additional body arguments are ignored rather than
// rejected, so a body with signature "bs" decodes as its boolean:
// senders that append fields to a signal keep working. If the body is
// empty or its first argument cannot be converted to want, Decode
// returns a [*DecodeError].
func Decode(body []any, want Kind) (Value, error) {
	if len(body) == 0 {
		return Value{}, &DecodeError{Want: want}
	}
	return decodeOne(body[0], want)
}

// DecodeVariant converts a property value into a Value of the
// requested kind.
func DecodeVariant(v dbus.Variant, want Kind) (Value, error) {
	return decodeOne(v.Value(), want)
}

func decodeOne(raw any, want Kind) (Value, error) {
	if v, ok := raw.(dbus.Variant); ok {
		raw = v.Value()
	}
	switch want {
	case KindBoolean:
		if b, ok := raw.(bool); ok {
			return BoolValue(b), nil
		}
	}
	return Value{}, &DecodeError{Want: want, Got: signatureOf(raw)}
}

// signatureOf is dbus.SignatureOf, minus the panic on values that
// have no DBus representation.
func signatureOf(v any) (sig dbus.Signature) {
	if v == nil {
		return sig
	}
	defer func() {
		if recover() != nil {
			sig = dbus.Signature{}
		}
	}()
	return dbus.SignatureOf(v)
}
