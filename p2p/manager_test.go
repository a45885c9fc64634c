package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeBackend records call order and returns scripted outcomes, standing
// in for the control service.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	overlap  bool
	fail     map[string]error
	gate     chan struct{} // when set, every call blocks until the gate closes
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fail: make(map[string]error)}
}

func (b *fakeBackend) enter(op string) {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	b.inFlight++
	if b.inFlight > 1 {
		b.overlap = true
	}
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
}

func (b *fakeBackend) leave() {
	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
}

func (b *fakeBackend) run(op string) error {
	b.enter(op)
	defer b.leave()
	return b.fail[op]
}

func (b *fakeBackend) StartDiscovery(ctx context.Context) error { return b.run("start_discovery") }
func (b *fakeBackend) StopDiscovery(ctx context.Context) error  { return b.run("stop_discovery") }
func (b *fakeBackend) CreateGroup(ctx context.Context) error    { return b.run("create_group") }

func (b *fakeBackend) Connect(ctx context.Context, deviceAddress string) error {
	return b.run("connect:" + deviceAddress)
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func waitResult(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed while waiting for event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestDiscoverSuccess(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	sub := ch.SubscribeEvents()
	defer sub.Cancel()

	pending, err := ch.DiscoverPeers(context.Background())
	if err != nil {
		t.Fatalf("DiscoverPeers failed: %v", err)
	}
	if err := waitResult(t, pending); err != nil {
		t.Errorf("expected success, got %v", err)
	}

	ev := receiveEvent(t, sub)
	if ev.Type != EventDiscoveryStarted {
		t.Errorf("expected %s event, got %s", EventDiscoveryStarted, ev.Type)
	}

	calls := backend.callLog()
	if len(calls) != 1 || calls[0] != "start_discovery" {
		t.Errorf("unexpected backend calls: %v", calls)
	}
}

func TestConnectFailureStaysPrivate(t *testing.T) {
	backend := newFakeBackend()
	remoteErr := &Error{Kind: KindRemoteCall, Message: "method call failed"}
	backend.fail["connect:aa:bb:cc:dd:ee:ff"] = remoteErr

	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	sub := ch.SubscribeEvents()
	defer sub.Cancel()

	pending, err := ch.Connect(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := waitResult(t, pending); !IsKind(err, KindRemoteCall) {
		t.Errorf("expected remote_call failure, got %v", err)
	}

	// A subsequent successful command proves the loop survived, and its
	// event arriving first proves the failure was never broadcast.
	pending, err = ch.CreateGroup(context.Background())
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := waitResult(t, pending); err != nil {
		t.Errorf("expected success after failed command, got %v", err)
	}

	ev := receiveEvent(t, sub)
	if ev.Type != EventGroupCreated {
		t.Errorf("expected %s as first event, got %s", EventGroupCreated, ev.Type)
	}
}

func TestConnectedEventCarriesAddress(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	sub := ch.SubscribeEvents()
	defer sub.Cancel()

	pending, err := ch.Connect(context.Background(), "02:11:22:33:44:55")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := waitResult(t, pending); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	ev := receiveEvent(t, sub)
	if ev.Type != EventConnected {
		t.Fatalf("expected %s event, got %s", EventConnected, ev.Type)
	}
	if ev.Address != "02:11:22:33:44:55" {
		t.Errorf("expected event address 02:11:22:33:44:55, got %q", ev.Address)
	}
}

func TestConnectEmptyAddress(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	for _, address := range []string{"", "   "} {
		if _, err := ch.Connect(context.Background(), address); !IsKind(err, KindInvalidInput) {
			t.Errorf("Connect(%q): expected invalid_input, got %v", address, err)
		}
	}

	if calls := backend.callLog(); len(calls) != 0 {
		t.Errorf("backend should not have been called, got %v", calls)
	}
}

func TestCommandsExecuteInSubmissionOrder(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	var want []string
	var pendings []*Pending
	for i := 0; i < 10; i++ {
		var (
			p   *Pending
			err error
		)
		switch i % 3 {
		case 0:
			p, err = ch.DiscoverPeers(context.Background())
			want = append(want, "start_discovery")
		case 1:
			p, err = ch.Connect(context.Background(), fmt.Sprintf("02:00:00:00:00:%02d", i))
			want = append(want, fmt.Sprintf("connect:02:00:00:00:00:%02d", i))
		case 2:
			p, err = ch.StopDiscovery(context.Background())
			want = append(want, "stop_discovery")
		}
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		pendings = append(pendings, p)
	}

	for i, p := range pendings {
		if err := waitResult(t, p); err != nil {
			t.Fatalf("command %d failed: %v", i, err)
		}
	}

	calls := backend.callLog()
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(calls), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestNoOverlappingBackendCalls(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := ch.DiscoverPeers(context.Background())
			if err != nil {
				t.Errorf("DiscoverPeers failed: %v", err)
				return
			}
			if err := waitResult(t, p); err != nil {
				t.Errorf("unexpected failure: %v", err)
			}
		}()
	}
	wg.Wait()

	backend.mu.Lock()
	overlap := backend.overlap
	backend.mu.Unlock()
	if overlap {
		t.Error("backend observed overlapping calls")
	}
}

func TestEventOrderFollowsCommandOrder(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	sub := ch.SubscribeEvents()
	defer sub.Cancel()

	first, err := ch.DiscoverPeers(context.Background())
	if err != nil {
		t.Fatalf("DiscoverPeers failed: %v", err)
	}
	second, err := ch.StopDiscovery(context.Background())
	if err != nil {
		t.Fatalf("StopDiscovery failed: %v", err)
	}
	if err := waitResult(t, first); err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if err := waitResult(t, second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if ev := receiveEvent(t, sub); ev.Type != EventDiscoveryStarted {
		t.Errorf("expected %s first, got %s", EventDiscoveryStarted, ev.Type)
	}
	if ev := receiveEvent(t, sub); ev.Type != EventDiscoveryStopped {
		t.Errorf("expected %s second, got %s", EventDiscoveryStopped, ev.Type)
	}
}

func TestLateSubscriberMissesEvent(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	early := ch.SubscribeEvents()
	defer early.Cancel()

	pending, err := ch.DiscoverPeers(context.Background())
	if err != nil {
		t.Fatalf("DiscoverPeers failed: %v", err)
	}
	if err := waitResult(t, pending); err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	// The early subscriber observes the event; a subscriber created
	// afterwards must not.
	if ev := receiveEvent(t, early); ev.Type != EventDiscoveryStarted {
		t.Fatalf("early subscriber: expected %s, got %s", EventDiscoveryStarted, ev.Type)
	}

	late := ch.SubscribeEvents()
	defer late.Cancel()
	select {
	case ev := <-late.Events():
		t.Errorf("late subscriber should see nothing, got %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDroppedPendingStillBroadcasts(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	sub := ch.SubscribeEvents()
	defer sub.Cancel()

	// Fire and forget: the result slot is never awaited.
	if _, err := ch.CreateGroup(context.Background()); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if ev := receiveEvent(t, sub); ev.Type != EventGroupCreated {
		t.Errorf("expected %s, got %s", EventGroupCreated, ev.Type)
	}
}

func TestCloseDrainsQueuedCommands(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})

	mgr := NewManager(backend)
	ch := mgr.Start()

	// First command occupies the loop at the gate; the second sits in
	// the queue when Close begins.
	first, err := ch.DiscoverPeers(context.Background())
	if err != nil {
		t.Fatalf("DiscoverPeers failed: %v", err)
	}
	second, err := ch.CreateGroup(context.Background())
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		mgr.Close()
		close(closed)
	}()

	// Give Close a moment to take effect, then release the backend.
	time.Sleep(20 * time.Millisecond)
	close(backend.gate)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	// Both result slots resolved even though Close ran in between.
	if err := waitResult(t, first); err != nil {
		t.Errorf("first command: expected success, got %v", err)
	}
	if err := waitResult(t, second); err != nil {
		t.Errorf("second command: expected success, got %v", err)
	}

	if _, err := ch.DiscoverPeers(context.Background()); !IsKind(err, KindChannelClosed) {
		t.Errorf("submit after Close: expected channel_closed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	mgr.Start()
	mgr.Close()
	mgr.Close()
}

func TestCloseBeforeStart(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	mgr.Close()

	ch := mgr.Start()
	if _, err := ch.DiscoverPeers(context.Background()); !IsKind(err, KindChannelClosed) {
		t.Errorf("expected channel_closed, got %v", err)
	}
}

func TestEmitPeerFound(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(backend)
	defer mgr.Close()
	ch := mgr.Start()

	sub := ch.SubscribeEvents()
	defer sub.Cancel()

	dev := Device{Address: "02:11:22:33:44:55", Name: "printer", PrimaryType: "3-0050F204-1"}
	ch.EmitPeerFound(dev)

	ev := receiveEvent(t, sub)
	if ev.Type != EventPeerFound {
		t.Fatalf("expected %s, got %s", EventPeerFound, ev.Type)
	}
	if ev.Device == nil || *ev.Device != dev {
		t.Errorf("expected device %+v, got %+v", dev, ev.Device)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})

	mgr := NewManager(backend)
	ch := mgr.Start()

	pending, err := ch.DiscoverPeers(context.Background())
	if err != nil {
		t.Fatalf("DiscoverPeers failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pending.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(backend.gate)
	mgr.Close()
}
