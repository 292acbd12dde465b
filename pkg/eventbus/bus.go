package eventbus

import "sync"

// Bus is a typed, synchronous event bus. The zero value is not usable; use New.
type Bus[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []entry[T]
	closed   bool
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn and returns a function that unregisters it.
// Subscribing to a closed bus returns a no-op remover.
func (b *Bus[T]) Subscribe(fn func(T)) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || fn == nil {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, entry[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.handlers {
		if e.id == id {
			// Copy so in-flight Publish snapshots are not mutated.
			next := make([]entry[T], 0, len(b.handlers)-1)
			next = append(next, b.handlers[:i]...)
			next = append(next, b.handlers[i+1:]...)
			b.handlers = next
			return
		}
	}
}

// Publish delivers ev to all current handlers and returns how many were called.
func (b *Bus[T]) Publish(ev T) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	handlers := b.handlers
	b.mu.RUnlock()

	for _, e := range handlers {
		e.fn(ev)
	}
	return len(handlers)
}

// Len returns the number of registered handlers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Close drops all handlers. Later Publish and Subscribe calls are no-ops.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
}
