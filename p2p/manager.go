package p2p

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// DefaultQueueCapacity bounds the command queue; submits block once
	// this many commands are pending.
	DefaultQueueCapacity = 32
	// DefaultSubscriberBuffer bounds each subscriber's unread backlog.
	DefaultSubscriberBuffer = 64
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the actor loop. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithQueueCapacity overrides DefaultQueueCapacity.
func WithQueueCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueCapacity = n
		}
	}
}

// WithSubscriberBuffer overrides DefaultSubscriberBuffer.
func WithSubscriberBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.subscriberBuffer = n
		}
	}
}

// Manager owns the command queue, the broadcast topic, and the single
// consumption loop that drains the queue against the Backend. Construct
// one with NewManager, obtain the caller-facing handle with Start, and
// tear it down with Close. A stopped Manager cannot be restarted; build
// a fresh one to resume service.
type Manager struct {
	backend Backend
	log     *slog.Logger

	queueCapacity    int
	subscriberBuffer int

	commands chan command
	topic    *Topic

	// closing stops command intake; stopped reports that the loop has
	// drained the queue and exited.
	closing chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// NewManager builds a Manager around the given backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:          backend,
		log:              slog.Default(),
		queueCapacity:    DefaultQueueCapacity,
		subscriberBuffer: DefaultSubscriberBuffer,
		closing:          make(chan struct{}),
		stopped:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.commands = make(chan command, m.queueCapacity)
	m.topic = newTopic(m.subscriberBuffer)
	return m
}

// Start spawns the actor loop and returns the channel handle. Calling
// Start again returns an equivalent handle without spawning a second
// loop; there is exactly one queue consumer.
func (m *Manager) Start() *Channel {
	m.startOnce.Do(func() {
		go m.run()
	})
	return &Channel{
		commands: m.commands,
		topic:    m.topic,
		closing:  m.closing,
		stopped:  m.stopped,
	}
}

// Close stops command intake, waits for the loop to drain commands that
// were already queued, and shuts the topic down. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closing)
	})
	m.startOnce.Do(func() {
		// Close before Start: nothing to wait for.
		close(m.stopped)
		m.topic.close()
	})
	<-m.stopped
}

// run is the single consumer. It processes commands strictly in
// submission order, one at a time, until Close is requested and the
// queue is drained.
func (m *Manager) run() {
	defer close(m.stopped)
	defer m.topic.close()

	for {
		select {
		case cmd := <-m.commands:
			m.execute(cmd)
		case <-m.closing:
			for {
				select {
				case cmd := <-m.commands:
					m.execute(cmd)
				default:
					m.log.Debug("actor loop stopped")
					return
				}
			}
		}
	}
}

// execute runs one command against the backend, resolves its result
// slot, and broadcasts the matching event on success. A backend failure
// is reported to the submitting caller only; it is never fatal to the
// loop and never becomes an event.
func (m *Manager) execute(cmd command) {
	ctx := context.Background()

	var err error
	switch cmd.kind {
	case cmdDiscover:
		err = m.backend.StartDiscovery(ctx)
	case cmdStopDiscovery:
		err = m.backend.StopDiscovery(ctx)
	case cmdConnect:
		err = m.backend.Connect(ctx, cmd.address)
	case cmdCreateGroup:
		err = m.backend.CreateGroup(ctx)
	}

	// The slot has capacity 1 and is resolved exactly once, so this
	// send cannot block even if the caller dropped its receiver.
	cmd.respond <- err

	if err != nil {
		m.log.Warn("command failed", "command", cmd.kind.String(), "error", err)
		return
	}

	switch cmd.kind {
	case cmdDiscover:
		m.topic.publish(Event{Type: EventDiscoveryStarted})
	case cmdStopDiscovery:
		m.topic.publish(Event{Type: EventDiscoveryStopped})
	case cmdConnect:
		m.topic.publish(Event{Type: EventConnected, Address: cmd.address})
	case cmdCreateGroup:
		m.topic.publish(Event{Type: EventGroupCreated})
	}
}
