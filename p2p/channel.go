package p2p

import (
	"context"
	"strings"
)

// Channel is the caller-facing handle over a running Manager. It bundles
// the command producer with the broadcast subscriber factory. Channel
// values are cheap handles onto shared state: copy them freely, every
// copy feeds the same queue and topic.
type Channel struct {
	commands chan<- command
	topic    *Topic
	closing  <-chan struct{}
	stopped  <-chan struct{}
}

// SubscribeEvents returns a fresh subscription to the broadcast topic.
// Each subscriber gets its own receiver and consumes at its own pace.
func (c *Channel) SubscribeEvents() *Subscription {
	return c.topic.Subscribe()
}

// DiscoverPeers submits a request to start a peer discovery scan. The
// returned Pending resolves once the scan request itself has been
// answered; discovered peers arrive later as EventPeerFound broadcasts.
func (c *Channel) DiscoverPeers(ctx context.Context) (*Pending, error) {
	return c.submit(ctx, cmdDiscover, "")
}

// StopDiscovery submits a request to stop the ongoing scan.
func (c *Channel) StopDiscovery(ctx context.Context) (*Pending, error) {
	return c.submit(ctx, cmdStopDiscovery, "")
}

// Connect submits a request to connect to the peer with the given device
// address. An empty address fails immediately with KindInvalidInput,
// before anything is enqueued.
func (c *Channel) Connect(ctx context.Context, deviceAddress string) (*Pending, error) {
	if strings.TrimSpace(deviceAddress) == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: "empty device address"}
	}
	return c.submit(ctx, cmdConnect, deviceAddress)
}

// CreateGroup submits a request to create a group with default options.
func (c *Channel) CreateGroup(ctx context.Context) (*Pending, error) {
	return c.submit(ctx, cmdCreateGroup, "")
}

// EmitPeerFound broadcasts a peer-found event without going through the
// command queue. This is the entry point for external discovery signal
// producers feeding the same topic the actor publishes to.
func (c *Channel) EmitPeerFound(dev Device) {
	c.topic.publish(Event{Type: EventPeerFound, Device: &dev})
}

// submit enqueues one command and hands back its result slot. It blocks
// while the queue is full, honors ctx, and fails with
// KindChannelClosed("commands") once shutdown has begun.
func (c *Channel) submit(ctx context.Context, kind commandKind, address string) (*Pending, error) {
	respond := make(chan error, 1)

	select {
	case <-c.closing:
		return nil, &Error{Kind: KindChannelClosed, Endpoint: "commands"}
	default:
	}

	select {
	case c.commands <- command{kind: kind, address: address, respond: respond}:
		return &Pending{respond: respond, stopped: c.stopped}, nil
	case <-c.closing:
		return nil, &Error{Kind: KindChannelClosed, Endpoint: "commands"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending is the receiving half of one command's result slot. Submit and
// await are separate steps: a caller can fire a command and only later
// block on its outcome, or drop the Pending entirely. Dropping it
// does not cancel the in-flight operation; a successful outcome is still
// broadcast.
type Pending struct {
	respond <-chan error
	stopped <-chan struct{}
}

// Wait blocks until the command's outcome is delivered. It returns nil
// on success, the typed failure reported by the backend, ctx.Err() if
// ctx expires first, or KindChannelClosed("result") when the actor
// stopped without ever executing the command.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case err := <-p.respond:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		// The loop drains already-queued commands before stopped
		// closes, so a resolved slot is already buffered here.
		select {
		case err := <-p.respond:
			return err
		default:
			return &Error{Kind: KindChannelClosed, Endpoint: "result"}
		}
	}
}
