// Package registry is a fixed-capacity slot table for world entities.
//
// Slots are numbered 1..capacity; slot 0 is never assigned. An entity is
// always stored under its own Index(), so a slot lookup and the entity's
// recorded index can never disagree.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrFull          = errors.New("registry: full")
	ErrBadIndex      = errors.New("registry: index out of range")
	ErrOccupied      = errors.New("registry: slot occupied")
	ErrNotRegistered = errors.New("registry: entity not registered")
)

// Entity is anything with a fixed slot index.
type Entity interface {
	comparable
	Index() int
}

type Registry[T Entity] struct {
	mu     sync.RWMutex
	slots  []T
	size   int
	cursor int
}

func New[T Entity](capacity int) *Registry[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry[T]{
		slots:  make([]T, capacity+1),
		cursor: 1,
	}
}

func (r *Registry[T]) Cap() int { return len(r.slots) - 1 }

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// AvailableSlot returns a free slot, trying the slot most recently freed
// before scanning from 1.
func (r *Registry[T]) AvailableSlot() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.freeSlotLocked()
}

func (r *Registry[T]) freeSlotLocked() (int, bool) {
	var zero T
	if r.size >= r.Cap() {
		return 0, false
	}
	if r.cursor >= 1 && r.cursor <= r.Cap() && r.slots[r.cursor] == zero {
		return r.cursor, true
	}
	for i := 1; i <= r.Cap(); i++ {
		if r.slots[i] == zero {
			return i, true
		}
	}
	return 0, false
}

// Add stores e under e.Index(). It fails when the table is full, the index
// is out of range or the slot is taken.
func (r *Registry[T]) Add(e T) error {
	var zero T
	if e == zero {
		return fmt.Errorf("registry: add zero entity")
	}
	i := e.Index()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size >= r.Cap() {
		return ErrFull
	}
	if i < 1 || i > r.Cap() {
		return fmt.Errorf("%w: %d", ErrBadIndex, i)
	}
	if r.slots[i] != zero {
		return fmt.Errorf("%w: %d", ErrOccupied, i)
	}
	r.slots[i] = e
	r.size++
	if r.cursor == i {
		r.cursor = i + 1
	}
	return nil
}

// Claim picks a free slot and stores build(slot) there under one lock, so
// no other admission can take the slot in between. build must not block.
func (r *Registry[T]) Claim(build func(slot int) T) (T, error) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.freeSlotLocked()
	if !ok {
		return zero, ErrFull
	}
	e := build(i)
	if e == zero {
		return zero, fmt.Errorf("registry: add zero entity")
	}
	if e.Index() != i {
		return zero, fmt.Errorf("%w: built index %d for slot %d", ErrBadIndex, e.Index(), i)
	}
	r.slots[i] = e
	r.size++
	if r.cursor == i {
		r.cursor = i + 1
	}
	return e, nil
}

// Remove clears the slot e occupies. The slot must hold e itself.
func (r *Registry[T]) Remove(e T) error {
	var zero T
	if e == zero {
		return fmt.Errorf("%w: zero entity", ErrNotRegistered)
	}
	i := e.Index()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 1 || i > r.Cap() {
		return fmt.Errorf("%w: %d", ErrBadIndex, i)
	}
	if r.slots[i] != e {
		return fmt.Errorf("%w: slot %d", ErrNotRegistered, i)
	}
	r.slots[i] = zero
	r.size--
	r.cursor = i
	return nil
}

func (r *Registry[T]) Get(i int) (T, bool) {
	var zero T
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 1 || i > r.Cap() {
		return zero, false
	}
	e := r.slots[i]
	return e, e != zero
}

// Snapshot returns the occupied entities in slot order.
func (r *Registry[T]) Snapshot() []T {
	var zero T
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, r.size)
	for i := 1; i <= r.Cap(); i++ {
		if r.slots[i] != zero {
			out = append(out, r.slots[i])
		}
	}
	return out
}

// Each calls fn for every occupied slot until fn returns false. fn runs
// outside the lock and may call Add or Remove.
func (r *Registry[T]) Each(fn func(T) bool) {
	for _, e := range r.Snapshot() {
		if !fn(e) {
			return
		}
	}
}
