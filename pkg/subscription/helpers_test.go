package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/relaysub/pkg/eventbus"
	"github.com/relaykit/relaysub/pkg/heartbeat"
	"github.com/relaykit/relaysub/pkg/persistence"
	"github.com/relaykit/relaysub/pkg/wire"
)

const testClientID = "did:key:z6MktestClient"

// fakeLink is an in-memory relay link. Requests succeed unless handler says otherwise.
type fakeLink struct {
	mu         sync.Mutex
	connected  bool
	connecting bool
	handler    func(ctx context.Context, req *wire.Request) (*wire.Response, error)
	calls      map[string]int
	batches    [][]string
	openErr    error
	opens      int

	connects    *eventbus.Bus[struct{}]
	disconnects *eventbus.Bus[struct{}]
}

func newFakeLink(connected bool) *fakeLink {
	return &fakeLink{
		connected:   connected,
		calls:       make(map[string]int),
		connects:    eventbus.New[struct{}](),
		disconnects: eventbus.New[struct{}](),
	}
}

func (l *fakeLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) Connecting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connecting
}

func (l *fakeLink) Request(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	l.mu.Lock()
	l.calls[req.Method]++
	if req.Method == wire.MethodsFor("").BatchSubscribe {
		var params wire.BatchSubscribeParams
		if err := json.Unmarshal(req.Params, &params); err == nil {
			l.batches = append(l.batches, params.Topics)
		}
	}
	handler := l.handler
	l.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	return wire.NewResult(req.ID, true)
}

func (l *fakeLink) TransportOpen(ctx context.Context) error {
	l.mu.Lock()
	l.opens++
	err := l.openErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.connect()
	return nil
}

func (l *fakeLink) OnConnect(fn func()) func() {
	return l.connects.Subscribe(func(struct{}) { fn() })
}

func (l *fakeLink) OnDisconnect(fn func()) func() {
	return l.disconnects.Subscribe(func(struct{}) { fn() })
}

func (l *fakeLink) connect() {
	l.mu.Lock()
	l.connected = true
	l.connecting = false
	l.mu.Unlock()
	l.connects.Publish(struct{}{})
}

func (l *fakeLink) disconnect() {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.disconnects.Publish(struct{}{})
}

func (l *fakeLink) setHandler(h func(ctx context.Context, req *wire.Request) (*wire.Response, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *fakeLink) callCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *fakeLink) batchSizes() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sizes := make([]int, len(l.batches))
	for i, b := range l.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// blockUntilDone answers nothing until the request context ends.
func blockUntilDone(ctx context.Context, _ *wire.Request) (*wire.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func failWith(err error) func(context.Context, *wire.Request) (*wire.Response, error) {
	return func(context.Context, *wire.Request) (*wire.Response, error) {
		return nil, err
	}
}

type staticIdentity string

func (s staticIdentity) ClientID(context.Context) (string, error) {
	return string(s), nil
}

type failingIdentity struct{}

func (failingIdentity) ClientID(context.Context) (string, error) {
	return "", errors.New("keystore locked")
}

type testEnv struct {
	link    *fakeLink
	storage *persistence.MemoryStore
	beat    *heartbeat.Heartbeat
	mgr     *Manager
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SubscribeTimeout = 2 * time.Second
	cfg.InitialSubscribeTimeout = time.Second
	cfg.ResolveTimeout = 200 * time.Millisecond
	return cfg
}

// newTestEnv builds an initialized manager over a fake link.
func newTestEnv(t *testing.T, connected bool, cfg Config) *testEnv {
	t.Helper()
	env := newUninitializedEnv(t, connected, cfg)
	ctx := context.Background()
	require.NoError(t, env.mgr.Init(ctx))
	require.NoError(t, env.mgr.Start(ctx))
	return env
}

func newUninitializedEnv(t *testing.T, connected bool, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		link:    newFakeLink(connected),
		storage: persistence.NewMemoryStore(),
		beat:    heartbeat.New(time.Hour),
	}
	mgr, err := NewManager(env.link, env.storage, env.beat, staticIdentity(testClientID), cfg)
	require.NoError(t, err)
	env.mgr = mgr
	t.Cleanup(func() { _ = mgr.Stop(context.Background()) })
	return env
}

func (e *testEnv) persisted(t *testing.T) []Subscription {
	t.Helper()
	var subs []Subscription
	_, err := e.storage.GetItem(context.Background(), e.mgr.StorageKey(), &subs)
	require.NoError(t, err)
	return subs
}

func (e *testEnv) seed(t *testing.T, subs ...Subscription) {
	t.Helper()
	key := persistence.Key(persistence.DefaultPrefix, persistence.DefaultVersion, "", StorageName)
	require.NoError(t, e.storage.SetItem(context.Background(), key, subs))
}

// eventRecorder collects manager events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(m *Manager) *eventRecorder {
	r := &eventRecorder{}
	m.OnEvent(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}
