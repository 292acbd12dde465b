package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/relaykit/relaysub/pkg/eventbus"
	"github.com/relaykit/relaysub/pkg/log"
	"github.com/relaykit/relaysub/pkg/persistence"
	"github.com/relaykit/relaysub/pkg/wire"
)

// Manager tracks the client's relay subscriptions across reconnects and restarts.
type Manager struct {
	config     Config
	link       Link
	storage    persistence.Storage
	heartbeat  Heartbeat
	identity   IdentityProvider
	logger     *slog.Logger
	events     log.Logger
	storageKey string

	// lifecycleMu serializes Init and Stop.
	lifecycleMu sync.Mutex

	// mu guards the fields below and orders promotions against disconnects.
	mu            sync.RWMutex
	initialized   bool
	connected     bool
	clientID      string
	startupLoaded bool
	removers      []func()
	runCtx        context.Context
	runCancel     context.CancelFunc
	wg            sync.WaitGroup

	store           *subscriptionStore
	pending         *pendingRegistry
	startupCache    *cacheBuffer
	disconnectCache *cacheBuffer
	confirmations   *confirmations
	bus             *eventbus.Bus[Event]
	inflight        singleflight.Group

	restartMu   sync.Mutex
	restarts    int
	restartDone chan struct{}

	checking  atomic.Bool
	persistMu sync.Mutex
}

// NewManager creates a manager. It does nothing until Init is called.
func NewManager(link Link, storage persistence.Storage, heartbeat Heartbeat, identity IdentityProvider, config Config) (*Manager, error) {
	switch {
	case link == nil:
		return nil, errors.New("subscription: nil link")
	case storage == nil:
		return nil, errors.New("subscription: nil storage")
	case heartbeat == nil:
		return nil, errors.New("subscription: nil heartbeat")
	case identity == nil:
		return nil, errors.New("subscription: nil identity provider")
	}

	config = config.withDefaults()
	return &Manager{
		config:          config,
		link:            link,
		storage:         storage,
		heartbeat:       heartbeat,
		identity:        identity,
		logger:          config.Logger.With("component", "subscription"),
		events:          config.EventLogger,
		storageKey:      persistence.Key(config.StoragePrefix, config.StorageVersion, config.StorageNamespace, StorageName),
		runCtx:          context.Background(),
		store:           newSubscriptionStore(),
		pending:         newPendingRegistry(),
		startupCache:    newCacheBuffer(),
		disconnectCache: newCacheBuffer(),
		confirmations:   newConfirmations(),
		bus:             eventbus.New[Event](),
	}, nil
}

// StorageKey returns the key the snapshot is persisted under.
func (m *Manager) StorageKey() string {
	return m.storageKey
}

// OnEvent registers fn for manager events and returns its remover.
// fn runs synchronously on the goroutine that caused the event.
func (m *Manager) OnEvent(fn func(Event)) func() {
	return m.bus.Subscribe(fn)
}

// Subscriptions returns the active subscriptions ordered by topic.
func (m *Manager) Subscriptions() []Subscription {
	return m.store.values()
}

// Topics returns the topics with at least one active subscription.
func (m *Manager) Topics() []string {
	return m.store.topics()
}

// IDs returns the active subscription IDs.
func (m *Manager) IDs() []string {
	return m.store.ids()
}

// Get returns the active subscription with the given ID.
func (m *Manager) Get(id string) (Subscription, error) {
	sub, ok := m.store.get(id)
	if !ok {
		return Subscription{}, ErrNoMatchingSubscription
	}
	return sub, nil
}

// HasSubscription reports whether id is active for topic.
func (m *Manager) HasSubscription(id, topic string) bool {
	sub, ok := m.store.get(id)
	return ok && sub.Topic == topic
}

// PendingCount returns the number of unconfirmed subscribes.
func (m *Manager) PendingCount() int {
	return m.pending.len()
}

// Pending returns the unconfirmed subscribes ordered by topic.
func (m *Manager) Pending() []PendingSubscription {
	return m.pending.values()
}

// HasAnyTopics reports whether anything is active, pending or cached.
func (m *Manager) HasAnyTopics() bool {
	return m.store.len() > 0 || m.pending.len() > 0 ||
		m.startupCache.len() > 0 || m.disconnectCache.len() > 0
}

// Cached returns the subscriptions waiting to be resubscribed.
func (m *Manager) Cached() []Subscription {
	subs := mergeUnique(m.startupCache.snapshot(), m.disconnectCache.snapshot())
	sortSubscriptions(subs)
	return subs
}

// ClientID returns the identity subscription IDs are derived from.
// It is empty before Init.
func (m *Manager) ClientID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientID
}

// IsConnected reports the manager's view of the link.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Manager) ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (m *Manager) deriveID(topic string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return DeriveID(topic, m.clientID)
}

func (m *Manager) runContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runCtx
}

// goAsync runs fn on the manager's run context unless the manager is stopped.
func (m *Manager) goAsync(fn func(ctx context.Context)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return false
	}
	ctx := m.runCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(ctx)
	}()
	return true
}

// promote makes sub active. If the link dropped in the meantime the
// subscription is suspended into the disconnect cache instead.
func (m *Manager) promote(sub Subscription) bool {
	m.mu.RLock()
	if !m.connected {
		m.disconnectCache.push(sub)
		m.pending.delete(sub.Topic)
		m.mu.RUnlock()
		m.logSubscription(log.ActionCached, sub, 0, "")
		return false
	}
	created := m.store.add(sub)
	m.pending.delete(sub.Topic)
	m.startupCache.remove(sub.ID)
	m.disconnectCache.remove(sub.ID)
	m.mu.RUnlock()

	m.confirmations.resolve(sub)
	if created {
		m.logSubscription(log.ActionCreated, sub, 0, "")
		m.bus.Publish(Event{Type: EventCreated, Subscription: sub})
	}
	return true
}

// deleteSubscription removes id locally and publishes EventDeleted.
func (m *Manager) deleteSubscription(id, reason string) error {
	sub, err := m.store.remove(id)
	if err != nil {
		// Suspended by a concurrent disconnect.
		m.disconnectCache.remove(id)
		return err
	}
	m.logSubscription(log.ActionDeleted, sub, 0, reason)
	m.bus.Publish(Event{Type: EventDeleted, Subscription: sub, Reason: reason})
	return nil
}

func (m *Manager) stalled(topic string, err error) {
	m.logger.Warn("relay request stalled", "topic", topic, "error", err)
	m.logSubscription(log.ActionStalled, Subscription{Topic: topic}, 0, err.Error())
	m.bus.Publish(Event{Type: EventConnectionStalled, Topic: topic, Err: err})
}

// onBusEvent persists the active set after every create and delete.
func (m *Manager) onBusEvent(ev Event) {
	if ev.Type != EventCreated && ev.Type != EventDeleted {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	m.persistMu.Lock()
	values := m.snapshot()
	err := m.storage.SetItem(ctx, m.storageKey, values)
	m.persistMu.Unlock()

	if err != nil {
		m.logger.Error("persist subscriptions", "key", m.storageKey, "error", err)
		return
	}
	m.bus.Publish(Event{Type: EventSync, Count: len(values)})
}

// snapshot returns the set to persist. After a disconnect the store has been
// drained into the disconnect cache, which then stands in for it.
func (m *Manager) snapshot() []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := m.store.values()
	if !m.connected {
		values = mergeUnique(values, m.disconnectCache.snapshot())
	}
	return values
}

func (m *Manager) loadPersisted(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	if _, err := m.storage.GetItem(ctx, m.storageKey, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (m *Manager) request(ctx context.Context, method string, params any) error {
	req, err := wire.NewRequest(method, params)
	if err != nil {
		return err
	}
	resp, err := m.link.Request(ctx, req)
	if err != nil {
		return err
	}
	return resp.Err()
}

func (m *Manager) logSubscription(action log.SubscriptionAction, sub Subscription, count int, reason string) {
	m.events.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerManager,
		Category:  log.CategorySubscription,
		ClientID:  m.ClientID(),
		Subscription: &log.SubscriptionEvent{
			Action: action,
			Topic:  sub.Topic,
			ID:     sub.ID,
			Count:  count,
			Reason: reason,
		},
	})
}

func (m *Manager) logState(oldState, newState, reason string) {
	m.events.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerManager,
		Category:  log.CategoryState,
		ClientID:  m.ClientID(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityManager,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// mergeUnique concatenates lists keeping the first occurrence of each ID.
func mergeUnique(lists ...[]Subscription) []Subscription {
	seen := make(map[string]struct{})
	var out []Subscription
	for _, list := range lists {
		for _, sub := range list {
			if _, ok := seen[sub.ID]; ok {
				continue
			}
			seen[sub.ID] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
