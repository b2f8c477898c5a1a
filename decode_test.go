package dbusbar

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    []any
		want    Value
		wantSig string // signature in the DecodeError, if decoding fails
		wantErr bool
	}{
		{"true", []any{true}, BoolValue(true), "", false},
		{"false", []any{false}, BoolValue(false), "", false},
		{"variant", []any{dbus.MakeVariant(true)}, BoolValue(true), "", false},
		{"extra args", []any{false, "ignored", uint32(42)}, BoolValue(false), "", false},
		{"empty", nil, Value{}, "", true},
		{"string", []any{"true"}, Value{}, "s", true},
		{"int", []any{int32(1)}, Value{}, "i", true},
		{"byte", []any{byte(1)}, Value{}, "y", true},
		{"bool array", []any{[]bool{true}}, Value{}, "ab", true},
		{"variant string", []any{dbus.MakeVariant("yes")}, Value{}, "s", true},
		{"bool second", []any{"x", true}, Value{}, "s", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.body, KindBoolean)
			if tc.wantErr {
				var de *DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("Decode(%v) err = %v, want DecodeError", tc.body, err)
				}
				if de.Want != KindBoolean {
					t.Errorf("DecodeError.Want = %s, want %s", de.Want, KindBoolean)
				}
				if got := de.Got.String(); got != tc.wantSig {
					t.Errorf("DecodeError.Got = %q, want %q", got, tc.wantSig)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%v) failed: %v", tc.body, err)
			}
			if got != tc.want {
				t.Errorf("Decode(%v) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestDecodeVariant(t *testing.T) {
	got, err := DecodeVariant(dbus.MakeVariant(true), KindBoolean)
	if err != nil {
		t.Fatalf("DecodeVariant(true) failed: %v", err)
	}
	if b, ok := got.Bool(); !ok || !b {
		t.Errorf("DecodeVariant(true) = %v, want true", got)
	}

	_, err = DecodeVariant(dbus.MakeVariant(uint32(7)), KindBoolean)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("DecodeVariant(uint32) err = %v, want DecodeError", err)
	}
	if got, want := de.Got.String(), "u"; got != want {
		t.Errorf("DecodeError.Got = %q, want %q", got, want)
	}
}

func TestValue(t *testing.T) {
	var zero Value
	if zero.Kind() != KindInvalid {
		t.Errorf("zero Value has kind %s, want invalid", zero.Kind())
	}
	if _, ok := zero.Bool(); ok {
		t.Error("zero Value.Bool() ok = true, want false")
	}
	if got, want := zero.String(), "<invalid>"; got != want {
		t.Errorf("zero Value.String() = %q, want %q", got, want)
	}

	v := BoolValue(true)
	if v.Kind() != KindBoolean {
		t.Errorf("BoolValue(true).Kind() = %s, want boolean", v.Kind())
	}
	if b, ok := v.Bool(); !ok || !b {
		t.Errorf("BoolValue(true).Bool() = %v, %v, want true, true", b, ok)
	}
}
