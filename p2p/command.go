package p2p

// commandKind identifies a command variant. Each kind maps 1:1 to one
// Backend method and, on success, to one EventType.
type commandKind int

const (
	cmdDiscover commandKind = iota
	cmdStopDiscovery
	cmdConnect
	cmdCreateGroup
)

func (k commandKind) String() string {
	switch k {
	case cmdDiscover:
		return "discover"
	case cmdStopDiscovery:
		return "stop_discovery"
	case cmdConnect:
		return "connect"
	case cmdCreateGroup:
		return "create_group"
	default:
		return "unknown"
	}
}

// command travels from a Channel to the Manager loop. respond is the
// one-shot result slot: buffered with capacity 1 so the loop's send
// never blocks, resolved exactly once, never reused.
type command struct {
	kind    commandKind
	address string
	respond chan<- error
}
