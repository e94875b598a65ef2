// SPDX-License-Identifier: MIT
//
// Package ring provides a fixed-capacity circular buffer with
// overwrite-oldest semantics. It is the storage behind MovingRMS and the
// spectrum analyzer's display history.
//
// A Buffer is not safe for concurrent use; it is owned by exactly one
// analyzer or filter.
package ring

import (
	"bbbtune/internal/errs"
	"fmt"
	"iter"
)

// Buffer is a circular buffer of T. The zero value is not usable, create
// one with New.
type Buffer[T any] struct {
	data []T
	head int  // next slot to write, always in [0, len(data))
	full bool // set once head has wrapped at least once
}

// New allocates a buffer holding capacity elements.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: capacity must be positive, got %d: %w", capacity, errs.ErrInvalidArgument)
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// Add writes v at the cursor and advances it. The returned value is the
// element that was overwritten, which is only meaningful once the buffer is
// full (before that it is the zero value of T).
func (b *Buffer[T]) Add(v T) T {
	replaced := b.data[b.head]
	b.data[b.head] = v
	b.head++
	if b.head == len(b.data) {
		b.head = 0
		b.full = true
	}
	return replaced
}

// Values returns the contents oldest to newest. The sequence is lazy and
// restartable: every range over it walks the buffer as it is at that moment.
// Adding while ranging is not supported.
func (b *Buffer[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		if b.full {
			for _, v := range b.data[b.head:] {
				if !yield(v) {
					return
				}
			}
		}
		for _, v := range b.data[:b.head] {
			if !yield(v) {
				return
			}
		}
	}
}

// CopyTo copies the contents oldest to newest into dst and returns the
// number of elements written. It never allocates.
func (b *Buffer[T]) CopyTo(dst []T) int {
	n := 0
	if b.full {
		n = copy(dst, b.data[b.head:])
	}
	return n + copy(dst[n:], b.data[:b.head])
}

// Len is the number of elements held: min(added, capacity).
func (b *Buffer[T]) Len() int {
	if b.full {
		return len(b.data)
	}
	return b.head
}

// Cap is the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Full reports whether the next Add evicts an element.
func (b *Buffer[T]) Full() bool { return b.full }

// Latest returns the most recently added element.
func (b *Buffer[T]) Latest() (T, bool) {
	var zero T
	if !b.full && b.head == 0 {
		return zero, false
	}
	i := b.head - 1
	if i < 0 {
		i = len(b.data) - 1
	}
	return b.data[i], true
}

// Resize replaces the storage with a freshly allocated buffer of capacity
// n and replays the retained elements into it oldest first. When shrinking,
// only the oldest n elements survive.
func (b *Buffer[T]) Resize(n int) error {
	if n <= 0 {
		return fmt.Errorf("ring: resize to %d: %w", n, errs.ErrInvalidArgument)
	}
	retained := make([]T, b.Len())
	b.CopyTo(retained)

	b.data = make([]T, n)
	b.head = 0
	b.full = false
	for _, v := range retained[:min(len(retained), n)] {
		b.Add(v)
	}
	return nil
}

// Clear zeroes every slot and resets the cursor.
func (b *Buffer[T]) Clear() {
	clear(b.data)
	b.head = 0
	b.full = false
}
