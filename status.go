package dbusbar

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const ifaceProps = "org.freedesktop.DBus.Properties"

// Resolve reads the property named by q and decodes it as a value of
// the given kind.
func Resolve(ctx context.Context, conn *dbus.Conn, q StatusQuery, want Kind) (Value, error) {
	var resp dbus.Variant
	obj := conn.Object(q.Service, q.Path)
	err := obj.CallWithContext(ctx, ifaceProps+".Get", 0, q.Interface, q.Property).Store(&resp)
	if err != nil {
		return Value{}, fmt.Errorf("reading property %s: %w", q, err)
	}
	ret, err := DecodeVariant(resp, want)
	if err != nil {
		return Value{}, fmt.Errorf("decoding property %s: %w", q, err)
	}
	return ret, nil
}
