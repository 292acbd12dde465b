package subscription

import (
	"fmt"
	"sort"
	"sync"
)

// subscriptionStore holds active subscriptions and the topic index.
type subscriptionStore struct {
	mu sync.RWMutex

	subs map[string]Subscription

	// topicMap indexes subscription IDs by topic.
	topicMap map[string]map[string]struct{}
}

func newSubscriptionStore() *subscriptionStore {
	return &subscriptionStore{
		subs:     make(map[string]Subscription),
		topicMap: make(map[string]map[string]struct{}),
	}
}

// add stores sub and reports whether it was not already present.
func (s *subscriptionStore) add(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.subs[sub.ID]; ok {
		if old.Topic == sub.Topic {
			s.subs[sub.ID] = sub
			return false
		}
		s.unindex(old)
	}
	s.subs[sub.ID] = sub
	ids := s.topicMap[sub.Topic]
	if ids == nil {
		ids = make(map[string]struct{})
		s.topicMap[sub.Topic] = ids
	}
	ids[sub.ID] = struct{}{}
	return true
}

func (s *subscriptionStore) remove(id string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrNoMatchingSubscription, id)
	}
	delete(s.subs, id)
	s.unindex(sub)
	return sub, nil
}

func (s *subscriptionStore) unindex(sub Subscription) {
	ids := s.topicMap[sub.Topic]
	delete(ids, sub.ID)
	if len(ids) == 0 {
		delete(s.topicMap, sub.Topic)
	}
}

func (s *subscriptionStore) get(id string) (Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

func (s *subscriptionStore) has(id string) bool {
	_, ok := s.get(id)
	return ok
}

func (s *subscriptionStore) hasTopic(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topicMap[topic]) > 0
}

func (s *subscriptionStore) idsFor(topic string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.topicMap[topic]))
	for id := range s.topicMap[topic] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *subscriptionStore) topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.topicMap))
	for t := range s.topicMap {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (s *subscriptionStore) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// values returns all subscriptions ordered by topic, then ID.
func (s *subscriptionStore) values() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valuesLocked()
}

func (s *subscriptionStore) valuesLocked() []Subscription {
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sortSubscriptions(out)
	return out
}

func (s *subscriptionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// drain returns every subscription and empties the store and index.
func (s *subscriptionStore) drain() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.valuesLocked()
	s.subs = make(map[string]Subscription)
	s.topicMap = make(map[string]map[string]struct{})
	return out
}

func sortSubscriptions(subs []Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Topic != subs[j].Topic {
			return subs[i].Topic < subs[j].Topic
		}
		return subs[i].ID < subs[j].ID
	})
}
