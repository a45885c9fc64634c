package supplicant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"

	"wifip2p/p2p"
)

const deviceFoundSignal = p2pDeviceInterface + ".DeviceFound"

// SignalWatcher turns wpa_supplicant's DeviceFound signals into
// p2p.Device snapshots. It is the external producer behind the
// EventPeerFound broadcast: the actor loop never sees these, they flow
// straight to the topic through the emit function.
type SignalWatcher struct {
	conn          *dbus.Conn
	interfacePath dbus.ObjectPath
	emit          func(p2p.Device)
	log           *slog.Logger
}

// NewSignalWatcher builds a watcher scoped to the given interface path.
// emit is invoked once per detected peer, from the watcher's goroutine.
func NewSignalWatcher(conn *dbus.Conn, interfacePath dbus.ObjectPath, emit func(p2p.Device), log *slog.Logger) *SignalWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &SignalWatcher{conn: conn, interfacePath: interfacePath, emit: emit, log: log}
}

// Run subscribes to DeviceFound and blocks until ctx is cancelled or the
// bus connection drops. Malformed signals are logged and skipped; they
// never stop the watcher.
func (w *SignalWatcher) Run(ctx context.Context) error {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(w.interfacePath),
		dbus.WithMatchInterface(p2pDeviceInterface),
		dbus.WithMatchMember("DeviceFound"),
	}
	if err := w.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return wrapCallError("AddMatch", err)
	}
	defer w.conn.RemoveMatchSignal(match...)

	signals := make(chan *dbus.Signal, 16)
	w.conn.Signal(signals)
	defer w.conn.RemoveSignal(signals)

	w.log.Info("watching for peers", "path", string(w.interfacePath))

	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return &p2p.Error{Kind: p2p.KindChannelClosed, Endpoint: "bus"}
			}
			if sig.Name != deviceFoundSignal {
				continue
			}
			w.handleDeviceFound(ctx, sig)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *SignalWatcher) handleDeviceFound(ctx context.Context, sig *dbus.Signal) {
	if len(sig.Body) == 0 {
		w.log.Warn("DeviceFound signal without body")
		return
	}
	peerPath, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		w.log.Warn("DeviceFound signal with unexpected body", "body", sig.Body[0])
		return
	}

	dev, err := w.readPeer(ctx, peerPath)
	if err != nil {
		w.log.Warn("failed to read peer properties", "path", string(peerPath), "error", err)
		return
	}

	w.log.Debug("peer found", "address", dev.Address, "name", dev.Name)
	w.emit(dev)
}

// readPeer fetches the peer object's properties and assembles a device
// snapshot. Only the address is required; a peer that does not report it
// falls back to the object path's last segment.
func (w *SignalWatcher) readPeer(ctx context.Context, peerPath dbus.ObjectPath) (p2p.Device, error) {
	obj := w.conn.Object(busName, peerPath)
	call := obj.CallWithContext(ctx, propertiesGetAll, 0, peerInterface)
	if call.Err != nil {
		return p2p.Device{}, wrapCallError("GetAll", call.Err)
	}

	var props map[string]dbus.Variant
	if err := call.Store(&props); err != nil {
		return p2p.Device{}, &p2p.Error{Kind: p2p.KindSerialization, Message: "peer properties", Err: err}
	}

	return deviceFromProperties(peerPath, props), nil
}

func deviceFromProperties(peerPath dbus.ObjectPath, props map[string]dbus.Variant) p2p.Device {
	var dev p2p.Device

	if raw, ok := props["DeviceAddress"]; ok {
		if bytes, ok := raw.Value().([]byte); ok {
			dev.Address = formatAddress(bytes)
		}
	}
	if dev.Address == "" {
		dev.Address = addressFromPath(peerPath)
	}

	if raw, ok := props["DeviceName"]; ok {
		if name, ok := raw.Value().(string); ok {
			dev.Name = name
		}
	}

	if raw, ok := props["PrimaryDeviceType"]; ok {
		if bytes, ok := raw.Value().([]byte); ok {
			dev.PrimaryType = formatDeviceType(bytes)
		}
	}

	return dev
}

// formatAddress renders a 6-byte device address in the usual
// colon-separated form.
func formatAddress(b []byte) string {
	if len(b) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])
}

// formatDeviceType renders the 8-byte WPS primary device type in
// wpa_supplicant's textual form, e.g. "1-0050F204-1".
func formatDeviceType(b []byte) string {
	if len(b) != 8 {
		return ""
	}
	category := uint16(b[0])<<8 | uint16(b[1])
	subcategory := uint16(b[6])<<8 | uint16(b[7])
	return fmt.Sprintf("%d-%02X%02X%02X%02X-%d", category, b[2], b[3], b[4], b[5], subcategory)
}

// addressFromPath recovers an address from a peer object path such as
// .../Peers/02112233aabb. wpa_supplicant encodes the address without
// separators in the final segment.
func addressFromPath(peerPath dbus.ObjectPath) string {
	segments := strings.Split(string(peerPath), "/")
	last := segments[len(segments)-1]
	if len(last) != 12 {
		return last
	}
	var parts []string
	for i := 0; i < len(last); i += 2 {
		parts = append(parts, strings.ToLower(last[i:i+2]))
	}
	return strings.Join(parts, ":")
}
