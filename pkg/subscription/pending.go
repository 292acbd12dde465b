package subscription

import (
	"sort"
	"sync"
)

// pendingRegistry holds at most one unconfirmed subscribe per topic.
type pendingRegistry struct {
	mu      sync.RWMutex
	entries map[string]PendingSubscription
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{entries: make(map[string]PendingSubscription)}
}

// set records p, replacing any entry for the same topic.
func (r *pendingRegistry) set(p PendingSubscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Topic] = p
}

func (r *pendingRegistry) delete(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, topic)
}

func (r *pendingRegistry) has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[topic]
	return ok
}

// values returns the pending entries ordered by topic.
func (r *pendingRegistry) values() []PendingSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PendingSubscription, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (r *pendingRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
