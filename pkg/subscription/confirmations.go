package subscription

import "sync"

// confirmations correlates waiters with subscription confirmations by topic.
// Each waiter receives at most one value.
type confirmations struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[string]map[uint64]chan Subscription
}

func newConfirmations() *confirmations {
	return &confirmations{waiters: make(map[string]map[uint64]chan Subscription)}
}

// wait registers a waiter for topic. The returned cancel must be called once
// the caller stops waiting.
func (c *confirmations) wait(topic string) (<-chan Subscription, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	ch := make(chan Subscription, 1)

	set := c.waiters[topic]
	if set == nil {
		set = make(map[uint64]chan Subscription)
		c.waiters[topic] = set
	}
	set[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.waiters[topic]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(c.waiters, topic)
			}
		}
	}
}

// resolve delivers sub to every waiter on its topic and clears them.
// It returns the number of waiters released.
func (c *confirmations) resolve(sub Subscription) int {
	c.mu.Lock()
	set := c.waiters[sub.Topic]
	delete(c.waiters, sub.Topic)
	c.mu.Unlock()

	for _, ch := range set {
		ch <- sub
	}
	return len(set)
}

func (c *confirmations) len(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters[topic])
}
