package subscription

import "sync"

// cacheBuffer holds suspended subscriptions awaiting resubscription.
// Entries are unique by ID; the first push wins.
type cacheBuffer struct {
	mu      sync.Mutex
	entries []Subscription
}

func newCacheBuffer() *cacheBuffer {
	return &cacheBuffer{}
}

func (c *cacheBuffer) push(subs ...Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range subs {
		if c.indexLocked(sub.ID) < 0 {
			c.entries = append(c.entries, sub)
		}
	}
}

func (c *cacheBuffer) indexLocked(id string) int {
	for i, e := range c.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// drain returns all entries and clears the buffer.
func (c *cacheBuffer) drain() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.entries
	c.entries = nil
	return out
}

// snapshot returns a copy of the entries without clearing.
func (c *cacheBuffer) snapshot() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Subscription(nil), c.entries...)
}

// remove drops entries with the given IDs and returns how many were dropped.
func (c *cacheBuffer) remove(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return c.filter(func(s Subscription) bool {
		_, ok := set[s.ID]
		return ok
	})
}

// removeTopic drops entries for topic, restricted to id when it is non-empty.
func (c *cacheBuffer) removeTopic(topic, id string) int {
	return c.filter(func(s Subscription) bool {
		return s.Topic == topic && (id == "" || s.ID == id)
	})
}

func (c *cacheBuffer) filter(drop func(Subscription) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.entries[:0]
	n := 0
	for _, e := range c.entries {
		if drop(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	// Zero the tail.
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = Subscription{}
	}
	c.entries = kept
	return n
}

func (c *cacheBuffer) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
