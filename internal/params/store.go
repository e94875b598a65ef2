// SPDX-License-Identifier: MIT
package params

import "sync/atomic"

// Store publishes the current Model to concurrent readers. Writers are
// expected to be a single reactor goroutine; readers call Load and keep the
// returned snapshot for as long as they like.
type Store struct {
	current atomic.Pointer[Model]
}

// NewStore creates a store holding m.
func NewStore(m *Model) *Store {
	s := &Store{}
	s.current.Store(m)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Model {
	return s.current.Load()
}

// Replace installs a model from outside the current lineage, such as a
// freshly fetched peer snapshot. Its version is moved past the current one
// so version watchers still notice the change.
func (s *Store) Replace(m *Model) *Model {
	for {
		old := s.current.Load()
		next := &Model{params: m.params, version: old.version + 1}
		if s.current.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Update derives the next model with fn and installs it. A failing fn
// leaves the store unchanged.
func (s *Store) Update(fn func(*Model) (*Model, error)) (*Model, error) {
	for {
		old := s.current.Load()
		next, err := fn(old)
		if err != nil {
			return old, err
		}
		if s.current.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}
