package window

import "iter"

// Bounded is a fixed-capacity FIFO buffer. Push evicts the oldest item once
// the capacity is exceeded. Not safe for concurrent use; each agent guards
// its windows with its own mutex.
type Bounded[T any] struct {
	capacity int
	items    []T
}

func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bounded[T]{capacity: capacity, items: make([]T, 0, capacity)}
}

func (b *Bounded[T]) Push(item T) {
	b.items = append(b.items, item)
	if len(b.items) > b.capacity {
		n := copy(b.items, b.items[len(b.items)-b.capacity:])
		b.items = b.items[:n]
	}
}

func (b *Bounded[T]) Len() int { return len(b.items) }

// All iterates the window content in insertion order. The sequence is finite
// and restartable; callers must not push while iterating.
func (b *Bounded[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range b.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Values returns a copy of the window content in insertion order.
func (b *Bounded[T]) Values() []T {
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Bounded[T]) Clear() {
	b.items = b.items[:0]
}
