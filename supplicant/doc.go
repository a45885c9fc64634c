// Package supplicant implements the p2p.Backend port against
// wpa_supplicant's D-Bus control interface.
//
// [Backend] resolves the managed interface's object path once at
// construction via fi.w1.wpa_supplicant1.GetInterface and then maps each
// port operation onto the corresponding P2PDevice method: Find, StopFind,
// Connect, and GroupAdd. D-Bus failures come back as p2p.Error values
// with KindRemoteCall; value-conversion failures as KindSerialization.
//
// [SignalWatcher] is the discovery signal producer: it listens for the
// P2PDevice DeviceFound signal, reads the peer object's properties, and
// hands the resulting p2p.Device to a caller-supplied emit function
// (normally Channel.EmitPeerFound).
package supplicant
