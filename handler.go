package dbusbar

import "fmt"

// A Handler formats values for display by the status bar.
type Handler interface {
	// Kind reports the kind of [Value] that Format accepts. Values
	// read off the bus are decoded to this kind before they reach
	// the Handler.
	Kind() Kind
	// Format returns the display text for v.
	//
	// Format panics if v's kind is not Kind().
	Format(v Value) string
}

const (
	DefaultTrueText  = "true"
	DefaultFalseText = "false"
)

// Boolean is a Handler for boolean values.
type Boolean struct {
	// TrueText is displayed when the value is true.
	TrueText string
	// FalseText is displayed when the value is false.
	FalseText string
}

// NewBoolean returns a Boolean handler with the default texts.
func NewBoolean() *Boolean {
	return &Boolean{
		TrueText:  DefaultTrueText,
		FalseText: DefaultFalseText,
	}
}

func (h *Boolean) Kind() Kind { return KindBoolean }

func (h *Boolean) Format(v Value) string {
	b, ok := v.Bool()
	if !ok {
		panic(fmt.Errorf("boolean handler given %s value %s", v.Kind(), v))
	}
	if b {
		return h.TrueText
	}
	return h.FalseText
}
