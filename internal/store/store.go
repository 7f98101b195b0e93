// Package store provides the observable state container shared by every
// domain store, plus the persistence adapter and list helpers built on it.
package store

import "sync"

// Listener receives the new snapshot and the one it replaced.
type Listener[S any] func(next, prev S)

type subscription[S any] struct {
	id int
	fn Listener[S]
}

// Store holds one immutable snapshot of S. Mutations are serialized: a
// mutation and the notifications it triggers finish before the next one
// starts. Listeners may read the store but must not mutate it synchronously.
type Store[S any] struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	state  S
	subs   []subscription[S]
	nextID int
}

// New creates a store seeded with initial.
func New[S any](initial S) *Store[S] {
	return &Store[S]{state: initial}
}

// Get returns the current snapshot.
func (s *Store[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the snapshot wholesale and notifies listeners.
func (s *Store[S]) Set(next S) {
	s.Update(func(S) S { return next })
}

// Update computes the next snapshot from the current one, swaps it in and
// notifies listeners in registration order. It returns the new snapshot.
func (s *Store[S]) Update(fn func(S) S) S {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := fn(prev)
	s.state = next
	subs := s.subs
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next, prev)
	}
	return next
}

// Subscribe registers fn for change notifications. The returned function
// removes the registration and is safe to call more than once.
func (s *Store[S]) Subscribe(fn Listener[S]) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	// Copy on write so an in-flight notification loop keeps its own slice.
	subs := make([]subscription[S], 0, len(s.subs)+1)
	subs = append(subs, s.subs...)
	s.subs = append(subs, subscription[S]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Store[S]) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]subscription[S], 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.id != id {
			subs = append(subs, sub)
		}
	}
	s.subs = subs
}

// Listeners reports how many listeners are registered.
func (s *Store[S]) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
