package p2p

import "context"

// Backend is the remote-operation port: the set of control-service
// operations the actor loop invokes. Exactly one implementation call is
// in flight at any time; the Manager is the only component that touches
// the Backend, so implementations need not be safe for concurrent use.
//
// Each operation blocks until the underlying service answers and returns
// nil on success or a typed failure (normally a [*Error]).
type Backend interface {
	// StartDiscovery starts a peer discovery scan.
	StartDiscovery(ctx context.Context) error
	// StopDiscovery stops the ongoing peer discovery scan.
	StopDiscovery(ctx context.Context) error
	// Connect initiates a connection to the peer with the given
	// device address.
	Connect(ctx context.Context, deviceAddress string) error
	// CreateGroup creates a group with default options.
	CreateGroup(ctx context.Context) error
}
