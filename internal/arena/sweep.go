package arena

import "tumble/engine/internal/delta"

// Sweep iterates an arena while removing elements, for step-and-possibly-
// remove passes. Next physically extracts the current element up front;
// Restore reinstates it in the same slot with its original generation and
// SyncID, keeping outstanding handles valid. An element that is not
// restored before the following Next (or Close) has its removal finalized:
// generation bump, free-list insertion, SyncID unregistered.
//
// Restore is valid between a successful Next and the following Next or
// Close, and may be called repeatedly to replace the value. Insertions
// into the arena during a sweep are allowed; whether they are visited is
// undefined, like iteration order itself.
type Sweep[T any, D delta.Delta, P delta.Diffable[T, D]] struct {
	arena    *Arena[T, D, P]
	index    int
	first    bool
	restored bool
	done     bool

	// identity of the currently extracted slot, for Restore.
	generation uint32
	syncID     SyncID
}

// NewSweep starts a removing iteration over a. The arena must not be
// swept twice concurrently.
func NewSweep[T any, D delta.Delta, P delta.Diffable[T, D]](a *Arena[T, D, P]) *Sweep[T, D, P] {
	return &Sweep[T, D, P]{arena: a, first: true, restored: true}
}

// Next finalizes the previous element if it was not restored, then
// extracts and returns the next live element. It reports false when the
// arena is exhausted.
func (s *Sweep[T, D, P]) Next() (Handle, T, bool) {
	var zero T
	if s.done {
		return Handle{}, zero, false
	}
	s.finalize()
	if s.first {
		s.first = false
	} else {
		s.index++
	}
	a := s.arena
	for s.index < len(a.slots) && !a.slots[s.index].occupied {
		s.index++
	}
	if s.index >= len(a.slots) {
		s.done = true
		return Handle{}, zero, false
	}
	sl := &a.slots[s.index]
	s.generation = sl.generation
	s.syncID = sl.syncID
	h := HandleFromParts(uint32(s.index), sl.generation, sl.syncID)
	value := sl.value
	// Extracted but not yet on the free list; only finalize links it.
	*sl = slot[T]{nextFree: -1}
	a.length--
	s.restored = false
	return h, value, true
}

// Restore puts value back into the slot the last Next extracted, under
// the same generation and SyncID. Before the first Next and after Close
// it is a no-op.
func (s *Sweep[T, D, P]) Restore(value T) {
	if s.done || s.first {
		return
	}
	a := s.arena
	a.slots[s.index] = slot[T]{occupied: true, generation: s.generation, syncID: s.syncID, value: value}
	if !s.restored {
		a.length++
	}
	s.restored = true
}

// Close finalizes a pending removal and ends the sweep. It is safe to
// call after exhaustion and more than once.
func (s *Sweep[T, D, P]) Close() {
	if !s.done {
		s.finalize()
	}
	s.done = true
}

func (s *Sweep[T, D, P]) finalize() {
	if s.restored {
		return
	}
	a := s.arena
	a.generation++
	a.slots[s.index] = slot[T]{nextFree: a.freeHead}
	a.freeHead = int32(s.index)
	delete(a.byID, s.syncID)
	s.restored = true
}
