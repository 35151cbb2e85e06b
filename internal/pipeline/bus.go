package pipeline

import (
	"slices"
	"sync"
)

// Subscription is the guard returned by Subscribe. Closing it unregisters
// the callback; it is safe to close more than once.
type Subscription struct {
	id   uint64
	bus  *bus
	once sync.Once
}

// Close stops delivery to the subscribed callback.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.bus.remove(s.id) })
}

// bus fans lifecycle states out to registered callbacks. Ids grow
// monotonically and are never reused.
type bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(State)
}

func (b *bus) add(fn func(State)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[uint64]func(State))
	}
	b.nextID++
	b.subs[b.nextID] = fn
	return &Subscription{id: b.nextID, bus: b}
}

func (b *bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *bus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// publish calls every subscriber in registration order, outside the lock
// so callbacks may unsubscribe themselves.
func (b *bus) publish(st State) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	fns := make([]func(State), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
