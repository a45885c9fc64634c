// Package p2p provides a single-writer command/event actor over a Wi-Fi
// Direct control backend.
//
// The package is built around three pieces. [Manager] owns a bounded
// command queue and runs a single consumption loop that executes one
// command at a time against a [Backend], so no two control operations are
// ever in flight together. [Channel] is the caller-facing handle: each
// intent method (DiscoverPeers, StopDiscovery, Connect, CreateGroup)
// enqueues a command and immediately returns a [Pending] whose Wait method
// delivers that command's private outcome. [Topic] is the broadcast side:
// every successful command publishes exactly one [Event] to all current
// subscribers, while failures stay private to the submitting caller.
//
// The split between the per-command result and the shared event stream is
// deliberate: a caller learns what its own request did through Pending,
// and observers learn what happened in the system through a
// [Subscription], without either contract leaking into the other.
//
// All errors produced by the package are [*Error] values carrying a
// [Kind]; use [IsKind] or errors.As to inspect them. A hung backend call
// stalls the queue indefinitely, there is no timeout layer here.
package p2p
