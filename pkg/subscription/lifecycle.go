package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaykit/relaysub/pkg/log"
)

// Init fetches the client identity, loads the persisted snapshot into the
// startup cache and attaches the link, heartbeat and persistence listeners.
// Calling Init on an initialized manager is a no-op.
func (m *Manager) Init(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.ready() == nil {
		return nil
	}

	clientID, err := m.identity.ClientID(ctx)
	if err != nil {
		return fmt.Errorf("fetch client id: %w", err)
	}
	m.mu.Lock()
	m.clientID = clientID
	m.mu.Unlock()

	if err := m.restore(ctx); err != nil {
		if errors.Is(err, ErrRestoreConflict) {
			return err
		}
		// Retried on the next connect.
		m.logger.Warn("load persisted subscriptions", "key", m.storageKey, "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	removers := []func(){
		m.bus.Subscribe(m.onBusEvent),
		m.link.OnConnect(m.handleConnect),
		m.link.OnDisconnect(m.handleDisconnect),
		m.heartbeat.OnPulse(m.handlePulse),
	}

	m.mu.Lock()
	m.initialized = true
	m.runCtx = runCtx
	m.runCancel = cancel
	m.removers = removers
	m.mu.Unlock()

	m.logger.Debug("initialized", "client_id", clientID, "cached", m.startupCache.len())
	m.logState("uninitialized", "initialized", "")
	return nil
}

// Start restores and resubscribes immediately if the link is already up.
// Otherwise the work happens on the next link connect.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.ready(); err != nil {
		return err
	}
	if !m.link.Connected() {
		return nil
	}
	if !m.markConnected() {
		// A connect event got here first.
		return m.waitRestart(ctx)
	}

	m.logState("disconnected", "connected", "")

	end := m.beginRestart()
	defer end()
	m.restart(ctx)
	return nil
}

// Stop detaches all listeners and suspends the active subscriptions into the
// disconnect cache. The manager must be initialized again before further use.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = false
	removers := m.removers
	m.removers = nil
	cancel := m.runCancel
	m.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("stop: background work still running", "error", ctx.Err())
	}

	m.suspend("stopped")
	m.logState("initialized", "uninitialized", "stopped")
	return nil
}

func (m *Manager) markConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized || m.connected {
		return false
	}
	m.connected = true
	return true
}

func (m *Manager) handleConnect() {
	if !m.markConnected() {
		return
	}
	m.logState("disconnected", "connected", "")

	end := m.beginRestart()
	if !m.goAsync(func(ctx context.Context) {
		defer end()
		m.restart(ctx)
	}) {
		end()
	}
}

func (m *Manager) handleDisconnect() {
	m.suspend("link down")
}

// suspend moves every active subscription into the disconnect cache.
func (m *Manager) suspend(reason string) {
	m.mu.Lock()
	wasConnected := m.connected
	m.connected = false
	suspended := m.store.drain()
	m.disconnectCache.push(suspended...)
	m.mu.Unlock()

	if wasConnected {
		m.logState("connected", "disconnected", reason)
	}
	if len(suspended) > 0 {
		m.logger.Info("suspended subscriptions", "count", len(suspended), "reason", reason)
		m.logSubscription(log.ActionCached, Subscription{}, len(suspended), reason)
	}
}

func (m *Manager) handlePulse() {
	if !m.IsConnected() || m.restarting() || m.pending.len() == 0 {
		return
	}
	m.goAsync(m.checkPending)
}

// checkPending retries every pending subscribe in one batch pass.
func (m *Manager) checkPending(ctx context.Context) {
	if !m.checking.CompareAndSwap(false, true) {
		return
	}
	defer m.checking.Store(false)

	pending := m.pending.values()
	if len(pending) == 0 {
		return
	}
	if err := m.batchSubscribe(ctx, pending); err != nil {
		m.logger.Warn("retry pending subscriptions", "count", len(pending), "error", err)
	}
}

// restart loads the persisted snapshot if this process has not yet done so,
// then resubscribes everything cached.
func (m *Manager) restart(ctx context.Context) {
	if err := m.restore(ctx); err != nil {
		m.logger.Error("restore subscriptions", "error", err)
	}
	m.resubscribeAll(ctx)
}

// restore loads the persisted snapshot into the startup cache once per process.
func (m *Manager) restore(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.startupLoaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	persisted, err := m.loadPersisted(ctx)
	if err != nil {
		return fmt.Errorf("restore %s: %w", m.storageKey, err)
	}

	m.mu.Lock()
	if m.startupLoaded {
		m.mu.Unlock()
		return nil
	}
	if active := m.store.len(); len(persisted) > 0 && active > 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d active, %d persisted", ErrRestoreConflict, active, len(persisted))
	}
	m.startupCache.drain()
	m.startupCache.push(persisted...)
	m.startupLoaded = true
	m.mu.Unlock()

	if len(persisted) > 0 {
		m.logger.Info("restored subscriptions", "count", len(persisted))
		m.logSubscription(log.ActionRestored, Subscription{}, len(persisted), "")
	}
	return nil
}

// resubscribeAll replays both caches in batches. Entries stay cached until
// their batch is confirmed; failed batches are left pending for the heartbeat.
func (m *Manager) resubscribeAll(ctx context.Context) {
	cached := mergeUnique(m.startupCache.snapshot(), m.disconnectCache.snapshot())
	if len(cached) == 0 {
		return
	}

	done := 0
	for _, part := range chunk(cached, m.config.BatchLimit) {
		if !m.IsConnected() || ctx.Err() != nil {
			m.logger.Debug("resubscribe interrupted", "done", done, "total", len(cached))
			break
		}
		pending := make([]PendingSubscription, len(part))
		for i, sub := range part {
			pending[i] = sub.pending()
		}
		if err := m.batchSubscribe(ctx, pending); err != nil {
			m.logger.Warn("resubscribe batch failed", "size", len(part), "error", err)
			continue
		}
		done += len(part)
	}

	m.logger.Info("resubscribed", "count", done, "total", len(cached))
	m.logSubscription(log.ActionResubscribed, Subscription{}, done, "")
	m.bus.Publish(Event{Type: EventResubscribed, Count: done})
}

// beginRestart closes the restart gate until the returned func is called.
func (m *Manager) beginRestart() func() {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if m.restarts == 0 {
		m.restartDone = make(chan struct{})
	}
	m.restarts++

	var released bool
	return func() {
		m.restartMu.Lock()
		defer m.restartMu.Unlock()
		if released {
			return
		}
		released = true
		m.restarts--
		if m.restarts == 0 {
			close(m.restartDone)
			m.restartDone = nil
		}
	}
}

func (m *Manager) restarting() bool {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()
	return m.restarts > 0
}

// waitRestart blocks while a restart is in progress.
func (m *Manager) waitRestart(ctx context.Context) error {
	m.restartMu.Lock()
	done := m.restartDone
	m.restartMu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
