package supplicant

import (
	"context"
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"

	"wifip2p/p2p"
)

const (
	busName            = "fi.w1.wpa_supplicant1"
	rootPath           = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	rootInterface      = "fi.w1.wpa_supplicant1"
	p2pDeviceInterface = "fi.w1.wpa_supplicant1.Interface.P2PDevice"
	peerInterface      = "fi.w1.wpa_supplicant1.Peer"
	propertiesGetAll   = "org.freedesktop.DBus.Properties.GetAll"
)

// Backend talks to wpa_supplicant over the system bus. It is constructed
// once per managed interface and used exclusively by the p2p.Manager
// loop, one call at a time.
type Backend struct {
	conn          *dbus.Conn
	interfacePath dbus.ObjectPath
}

// New resolves the object path for the named interface (e.g. "wlan0")
// and returns a backend bound to it. An empty interface name fails with
// KindInvalidInput without touching the bus.
func New(ctx context.Context, conn *dbus.Conn, interfaceName string) (*Backend, error) {
	if strings.TrimSpace(interfaceName) == "" {
		return nil, &p2p.Error{Kind: p2p.KindInvalidInput, Message: "empty interface name"}
	}

	var path dbus.ObjectPath
	call := conn.Object(busName, rootPath).CallWithContext(ctx, rootInterface+".GetInterface", 0, interfaceName)
	if call.Err != nil {
		return nil, wrapCallError("GetInterface", call.Err)
	}
	if err := call.Store(&path); err != nil {
		return nil, &p2p.Error{Kind: p2p.KindSerialization, Message: "GetInterface reply", Err: err}
	}

	return &Backend{conn: conn, interfacePath: path}, nil
}

// InterfacePath returns the resolved D-Bus object path of the managed
// interface. The signal watcher scopes its match rule to it.
func (b *Backend) InterfacePath() dbus.ObjectPath {
	return b.interfacePath
}

// StartDiscovery maps to the P2PDevice Find method.
func (b *Backend) StartDiscovery(ctx context.Context) error {
	return b.call(ctx, "Find", emptyOptions())
}

// StopDiscovery maps to the P2PDevice StopFind method.
func (b *Backend) StopDiscovery(ctx context.Context) error {
	return b.call(ctx, "StopFind")
}

// Connect maps to the P2PDevice Connect method using push-button WPS.
func (b *Backend) Connect(ctx context.Context, deviceAddress string) error {
	options, err := connectOptions(deviceAddress)
	if err != nil {
		return err
	}
	return b.call(ctx, "Connect", options)
}

// CreateGroup maps to the P2PDevice GroupAdd method.
func (b *Backend) CreateGroup(ctx context.Context) error {
	return b.call(ctx, "GroupAdd", emptyOptions())
}

func (b *Backend) call(ctx context.Context, method string, args ...interface{}) error {
	obj := b.conn.Object(busName, b.interfacePath)
	call := obj.CallWithContext(ctx, p2pDeviceInterface+"."+method, 0, args...)
	if call.Err != nil {
		return wrapCallError(method, call.Err)
	}
	return nil
}

// emptyOptions is the a{sv} argument most P2PDevice methods take;
// defaults apply when it carries no keys.
func emptyOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}

// connectOptions builds the a{sv} argument for Connect. Some
// wpa_supplicant builds expect "peer" as an object path; this follows
// the common build that accepts the device address directly.
func connectOptions(deviceAddress string) (map[string]dbus.Variant, error) {
	if strings.TrimSpace(deviceAddress) == "" {
		return nil, &p2p.Error{Kind: p2p.KindInvalidInput, Message: "empty device address"}
	}
	return map[string]dbus.Variant{
		"peer":       dbus.MakeVariant(deviceAddress),
		"wps_method": dbus.MakeVariant("pbc"),
	}, nil
}

// wrapCallError converts a D-Bus failure into the package's typed error.
func wrapCallError(op string, err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return &p2p.Error{Kind: p2p.KindRemoteCall, Message: op + " (" + dbusErr.Name + ")", Err: err}
	}
	return &p2p.Error{Kind: p2p.KindRemoteCall, Message: op, Err: err}
}
