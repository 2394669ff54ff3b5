package queue

import "sync"

// Ring is a generic thread-safe bounded buffer. Pushing onto a full ring
// overwrites the oldest item.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest item
	size  int
}

// NewRing creates a ring holding at most capacity items. A capacity below
// one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends items, dropping the oldest ones when full. It returns how
// many items were dropped.
func (r *Ring[T]) Push(items ...T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for _, item := range items {
		if r.size == len(r.items) {
			r.items[r.head] = item
			r.head = (r.head + 1) % len(r.items)
			dropped++
			continue
		}
		r.items[(r.head+r.size)%len(r.items)] = item
		r.size++
	}
	return dropped
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Newest returns up to n items, newest first. n <= 0 returns all items.
func (r *Ring[T]) Newest(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.items[(r.head+r.size-1-i)%len(r.items)])
	}
	return out
}

// Oldest returns all items, oldest first.
func (r *Ring[T]) Oldest() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.head+i)%len(r.items)])
	}
	return out
}

// Update calls fn on every held item, oldest first, until fn returns false.
func (r *Ring[T]) Update(fn func(item *T) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.size; i++ {
		if !fn(&r.items[(r.head+i)%len(r.items)]) {
			return
		}
	}
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
	r.head = 0
	r.size = 0
}
