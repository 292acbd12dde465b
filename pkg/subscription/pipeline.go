package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaykit/relaysub/pkg/log"
	"github.com/relaykit/relaysub/pkg/wire"
)

// SubscribeOptions tune a single Subscribe call.
type SubscribeOptions struct {
	// Protocol overrides Config.Protocol.
	Protocol string

	// TransportType defaults to TransportRelay.
	TransportType TransportType

	// FailOnTransportError returns relay transport failures to the caller
	// instead of leaving the topic pending for the next heartbeat.
	FailOnTransportError bool

	// IgnoreTimeout returns the derived ID instead of ErrSubscriptionTimeout.
	IgnoreTimeout bool
}

// UnsubscribeOptions tune a single Unsubscribe call.
type UnsubscribeOptions struct {
	// ID restricts the call to one subscription of the topic.
	ID string

	// Reason is attached to EventDeleted. Defaults to DefaultUnsubscribeReason.
	Reason string

	// Protocol overrides Config.Protocol.
	Protocol string

	// FailOnTransportError returns relay failures to the caller.
	FailOnTransportError bool
}

// Subscribe subscribes to topic and returns its subscription ID.
func (m *Manager) Subscribe(ctx context.Context, topic string) (string, error) {
	return m.SubscribeWithOptions(ctx, topic, SubscribeOptions{})
}

// SubscribeWithOptions subscribes to topic and returns its subscription ID.
//
// A topic that is already active returns its ID without a relay request.
// Concurrent calls for the same topic share one attempt. If the link is down
// the call opens it and waits for the reconnect to finish.
func (m *Manager) SubscribeWithOptions(ctx context.Context, topic string, opts SubscribeOptions) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	if topic == "" {
		return "", ErrInvalidTopic
	}
	if err := m.waitRestart(ctx); err != nil {
		return "", err
	}

	p := m.pendingFor(topic, opts.Protocol, opts.TransportType)
	id := m.deriveID(topic)
	if m.store.has(id) {
		return id, nil
	}

	if p.TransportType == TransportLinkMode {
		m.subscribeLinkMode(p)
		return id, nil
	}

	ch := m.inflight.DoChan(topic, func() (any, error) {
		actx, cancel := context.WithTimeout(m.runContext(), m.config.SubscribeTimeout)
		defer cancel()
		return nil, m.subscribeAttempt(actx, p, id)
	})

	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %q: %w", ErrSubscriptionTimeout, topic, ctx.Err())
		}
		return "", ctx.Err()
	}

	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrSubscriptionTimeout) && opts.IgnoreTimeout:
		return id, nil
	case errors.Is(err, ErrTransport) && !opts.FailOnTransportError:
		return id, nil
	default:
		return "", err
	}
}

func (m *Manager) pendingFor(topic, protocol string, tt TransportType) PendingSubscription {
	if protocol == "" {
		protocol = m.config.Protocol
	}
	if tt == "" {
		tt = TransportRelay
	}
	return PendingSubscription{Topic: topic, Protocol: protocol, TransportType: tt}
}

// subscribeAttempt runs one shared subscribe for p. ctx carries the overall timeout.
func (m *Manager) subscribeAttempt(ctx context.Context, p PendingSubscription, id string) error {
	m.pending.set(p)
	m.logSubscription(log.ActionPending, Subscription{ID: id, Topic: p.Topic}, 0, "")

	if !m.link.Connected() && !m.link.Connecting() {
		m.disconnectCache.push(Subscription{ID: id, Topic: p.Topic, Protocol: p.Protocol, TransportType: p.TransportType})
		m.logger.Debug("link down, opening transport", "topic", p.Topic)

		if err := m.link.TransportOpen(ctx); err != nil {
			return m.attemptFailed(ctx, p.Topic, err)
		}
		if err := m.waitRestart(ctx); err != nil {
			return m.attemptFailed(ctx, p.Topic, err)
		}
		if m.store.has(id) {
			return nil
		}
	}

	confirmed, cancelWait := m.confirmations.wait(p.Topic)
	defer cancelWait()

	rpcDone := make(chan error, 1)
	go func() {
		rctx, cancel := context.WithTimeout(ctx, m.config.InitialSubscribeTimeout)
		defer cancel()
		rpcDone <- m.request(rctx, wire.MethodsFor(p.Protocol).Subscribe, wire.SubscribeParams{Topic: p.Topic})
	}()

	for {
		select {
		case err := <-rpcDone:
			rpcDone = nil
			if err == nil {
				m.promote(p.confirm(m.ClientID()))
				return nil
			}
			if ctx.Err() != nil {
				return m.attemptFailed(ctx, p.Topic, err)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Keep waiting: a heartbeat retry may still confirm the topic.
				m.logger.Debug("subscribe request deadline, awaiting confirmation", "topic", p.Topic)
				continue
			}
			return m.attemptFailed(ctx, p.Topic, err)
		case <-confirmed:
			return nil
		case <-ctx.Done():
			return m.attemptFailed(ctx, p.Topic, ctx.Err())
		}
	}
}

// attemptFailed classifies a failed attempt and raises the stalled signal.
// The pending entry is kept for heartbeat retry.
func (m *Manager) attemptFailed(ctx context.Context, topic string, err error) error {
	m.stalled(topic, err)
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %q after %s", ErrSubscriptionTimeout, topic, m.config.SubscribeTimeout)
		}
		return ctx.Err()
	}
	return fmt.Errorf("%w: subscribe %q: %w", ErrTransport, topic, err)
}

func (m *Manager) subscribeLinkMode(p PendingSubscription) {
	sub := p.confirm(m.ClientID())
	m.promote(sub)

	if !m.link.Connected() {
		return
	}
	m.goAsync(func(ctx context.Context) {
		rctx, cancel := context.WithTimeout(ctx, m.config.InitialSubscribeTimeout)
		defer cancel()
		if err := m.request(rctx, wire.MethodsFor(p.Protocol).Subscribe, wire.SubscribeParams{Topic: p.Topic}); err != nil {
			m.logger.Debug("link-mode relay subscribe failed", "topic", p.Topic, "error", err)
		}
	})
}

// Unsubscribe removes every subscription of topic.
func (m *Manager) Unsubscribe(ctx context.Context, topic string) error {
	return m.UnsubscribeWithOptions(ctx, topic, UnsubscribeOptions{})
}

// UnsubscribeWithOptions removes subscriptions of topic. Each subscription is
// removed locally even if the relay request fails.
func (m *Manager) UnsubscribeWithOptions(ctx context.Context, topic string, opts UnsubscribeOptions) error {
	if err := m.ready(); err != nil {
		return err
	}
	if topic == "" {
		return ErrInvalidTopic
	}
	if err := m.waitRestart(ctx); err != nil {
		return err
	}
	if opts.Protocol == "" {
		opts.Protocol = m.config.Protocol
	}
	if opts.Reason == "" {
		opts.Reason = DefaultUnsubscribeReason
	}

	dropped := m.startupCache.removeTopic(topic, opts.ID) + m.disconnectCache.removeTopic(topic, opts.ID)
	if opts.ID == "" && m.pending.has(topic) {
		m.pending.delete(topic)
		dropped++
	}

	var ids []string
	if opts.ID != "" {
		if !m.HasSubscription(opts.ID, topic) {
			if dropped > 0 {
				return nil
			}
			return fmt.Errorf("%w: topic %q id %s", ErrNoMatchingSubscription, topic, opts.ID)
		}
		ids = []string{opts.ID}
	} else {
		ids = m.store.idsFor(topic)
	}

	var errs []error
	for _, id := range ids {
		if err := m.unsubscribeByID(ctx, topic, id, opts); err != nil {
			errs = append(errs, err)
		}
	}
	if !opts.FailOnTransportError {
		return nil
	}
	return errors.Join(errs...)
}

func (m *Manager) unsubscribeByID(ctx context.Context, topic, id string, opts UnsubscribeOptions) error {
	rctx, cancel := context.WithTimeout(ctx, m.config.SubscribeTimeout)
	rpcErr := m.request(rctx, wire.MethodsFor(opts.Protocol).Unsubscribe, wire.UnsubscribeParams{Topic: topic, ID: id})
	cancel()

	if rpcErr != nil {
		m.stalled(topic, rpcErr)
		rpcErr = fmt.Errorf("%w: unsubscribe %q: %w", ErrTransport, topic, rpcErr)
	}
	// Best effort: already gone locally is not an error here.
	_ = m.deleteSubscription(id, opts.Reason)
	return rpcErr
}

// IsSubscribed reports whether topic is active. If a subscribe for topic is
// still in flight it waits up to Config.ResolveTimeout for the confirmation.
func (m *Manager) IsSubscribed(ctx context.Context, topic string) bool {
	if m.ready() != nil {
		return false
	}
	if m.activeAndSettled(topic) {
		return true
	}

	confirmed, cancel := m.confirmations.wait(topic)
	defer cancel()

	// Re-check in case the confirmation landed before the waiter was registered.
	if m.activeAndSettled(topic) {
		return true
	}

	timer := time.NewTimer(m.config.ResolveTimeout)
	defer timer.Stop()

	select {
	case <-confirmed:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) activeAndSettled(topic string) bool {
	return m.store.hasTopic(topic) && !m.pending.has(topic)
}

// BatchSubscribe subscribes to subs in batches of at most Config.BatchLimit
// topics per request. Entries of a batch the relay accepts become active
// with their derived IDs.
func (m *Manager) BatchSubscribe(ctx context.Context, subs []PendingSubscription) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := m.waitRestart(ctx); err != nil {
		return err
	}
	norm := make([]PendingSubscription, len(subs))
	for i, p := range subs {
		if p.Topic == "" {
			return ErrInvalidTopic
		}
		norm[i] = m.pendingFor(p.Topic, p.Protocol, p.TransportType)
	}
	return m.batchSubscribe(ctx, norm)
}

func (m *Manager) batchSubscribe(ctx context.Context, subs []PendingSubscription) error {
	if len(subs) == 0 {
		return nil
	}
	clientID := m.ClientID()

	// Group by protocol, keeping first-seen order.
	var order []string
	groups := make(map[string][]PendingSubscription)
	for _, p := range subs {
		if p.Protocol == "" {
			p.Protocol = m.config.Protocol
		}
		if _, ok := groups[p.Protocol]; !ok {
			order = append(order, p.Protocol)
		}
		groups[p.Protocol] = append(groups[p.Protocol], p)
	}

	var errs []error
	for _, protocol := range order {
		method := wire.MethodsFor(protocol).BatchSubscribe
		for _, part := range chunk(groups[protocol], m.config.BatchLimit) {
			for _, p := range part {
				m.pending.set(p)
			}

			rctx, cancel := context.WithTimeout(ctx, m.config.SubscribeTimeout)
			err := m.request(rctx, method, wire.BatchSubscribeParams{Topics: topicsOf(part)})
			timedOut := errors.Is(rctx.Err(), context.DeadlineExceeded)
			cancel()

			if err != nil {
				m.stalled("", err)
				if timedOut {
					errs = append(errs, fmt.Errorf("%w: batch of %d: %w", ErrSubscriptionTimeout, len(part), err))
				} else {
					errs = append(errs, fmt.Errorf("%w: batch of %d: %w", ErrTransport, len(part), err))
				}
				continue
			}
			for _, p := range part {
				m.promote(p.confirm(clientID))
			}
		}
	}
	return errors.Join(errs...)
}

func topicsOf(subs []PendingSubscription) []string {
	topics := make([]string, len(subs))
	for i, p := range subs {
		topics[i] = p.Topic
	}
	return topics
}
