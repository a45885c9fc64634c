package p2p

// EventType identifies an event variant on the broadcast topic.
type EventType string

const (
	// EventDiscoveryStarted - a discovery request succeeded and the scan is active.
	EventDiscoveryStarted EventType = "discovery_started"
	// EventDiscoveryStopped - a request to stop discovery succeeded.
	EventDiscoveryStopped EventType = "discovery_stopped"
	// EventGroupCreated - a request to form a group succeeded.
	EventGroupCreated EventType = "group_created"
	// EventConnected - a connect request succeeded for Address.
	EventConnected EventType = "connected"
	// EventPeerFound - a peer was detected; Device carries its snapshot.
	EventPeerFound EventType = "peer_found"
)

// Event is a broadcast notification. Values are immutable and cheap to
// copy; a subscriber that is not receiving when an event is published
// simply misses it.
type Event struct {
	Type EventType `json:"type"`
	// Address is set for EventConnected.
	Address string `json:"address,omitempty"`
	// Device is set for EventPeerFound.
	Device *Device `json:"device,omitempty"`
}
