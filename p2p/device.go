package p2p

// Device is an immutable snapshot of one discovered peer. Address is the
// only identity; Name and PrimaryType are empty when the peer did not
// report them.
type Device struct {
	// Address is the peer's device address (e.g. "02:11:22:33:44:55").
	Address string `json:"address"`
	// Name is the display name reported by the peer, if any.
	Name string `json:"name,omitempty"`
	// PrimaryType is the primary device type (e.g. "1-0050F204-1"), if any.
	PrimaryType string `json:"primary_type,omitempty"`
}
