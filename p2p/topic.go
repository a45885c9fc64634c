package p2p

import "sync"

// Topic is the broadcast side of the actor: one publisher, any number of
// independent subscribers. Publishing never blocks; a subscriber that
// falls behind its buffer loses its oldest unread events rather than
// slowing the publisher down.
type Topic struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	buffer int
	closed bool
}

func newTopic(buffer int) *Topic {
	return &Topic{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Events published before the call
// are never delivered to it. After the topic closes, the returned
// subscription's channel is already closed.
func (t *Topic) Subscribe() *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Event, t.buffer)
	if t.closed {
		close(ch)
		return &Subscription{ch: ch}
	}

	id := t.next
	t.next++
	t.subs[id] = ch
	return &Subscription{topic: t, id: id, ch: ch}
}

// publish copies ev to every current subscriber. A full subscriber has
// its oldest unread event evicted to make room; if the buffer is somehow
// still full the event is skipped for that subscriber only.
func (t *Topic) publish(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// close shuts the topic down: every subscriber channel is closed after
// its buffered events, and later Subscribe calls return dead
// subscriptions.
func (t *Topic) close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}

func (t *Topic) unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

// Subscription is one subscriber's view of a Topic.
type Subscription struct {
	topic *Topic
	id    uint64
	ch    chan Event

	cancelOnce sync.Once
}

// Events returns the receive channel. It is closed when the subscription
// is cancelled or the topic shuts down; buffered events are still
// delivered first.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel removes the subscription from the topic and closes its channel.
// Safe to call more than once and after topic shutdown.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		if s.topic != nil {
			s.topic.unsubscribe(s.id)
		}
	})
}
