// Package arena implements the generational slot store underneath every
// replicated object set. Objects live in a dense slot slice and are
// addressed two ways at once: locally by (index, generation), which is
// cheap and recyclable, and globally by SyncID, which survives slot reuse
// and crosses process boundaries. The arena is also a container
// implementation of the diff/patch contract: two snapshots of the same
// arena lineage reconcile into an ArenaDelta keyed purely by SyncID.
//
// An arena instance owns all of its state. Instances are independent and
// safe to use from a single goroutine; the engine's tick model never
// mutates one concurrently.
package arena

import (
	"errors"
	"slices"

	"tumble/engine/internal/delta"
)

const defaultCapacity = 4

// ErrDuplicateSyncID is returned by InsertKnown when the supplied id
// already names an object in the arena.
var ErrDuplicateSyncID = errors.New("sync id already present")

type slot[T any] struct {
	occupied   bool
	nextFree   int32 // free slots only; -1 terminates the list
	generation uint32
	syncID     SyncID
	value      T
}

type slotAddr struct {
	index      uint32
	generation uint32
}

// Arena is a generational slot store whose elements implement the diff
// contract. T is the element, D its delta type, P the pointer-constraint
// binding the two. The zero value is an empty, usable arena.
type Arena[T any, D delta.Delta, P delta.Diffable[T, D]] struct {
	slots []slot[T]

	// generation is arena-wide and bumped on every removal, so one removal
	// invalidates every outstanding handle to the freed slot's old life.
	generation uint32
	freeHead   int32
	length     int

	// byID resolves a SyncID to the slot currently storing its object.
	byID map[SyncID]slotAddr
}

// Len returns the number of occupied slots.
func (a *Arena[T, D, P]) Len() int {
	return a.length
}

// Cap returns the total number of slots, occupied or free.
func (a *Arena[T, D, P]) Cap() int {
	return len(a.slots)
}

// Generation returns the arena-wide generation counter. It never
// decreases and strictly increases on every successful removal.
func (a *Arena[T, D, P]) Generation() uint32 {
	return a.generation
}

// Insert stores value in a recycled or fresh slot under a newly minted
// SyncID and returns a resolved handle to it. Amortized O(1).
func (a *Arena[T, D, P]) Insert(value T) Handle {
	return a.insert(value, NewSyncID())
}

// InsertKnown stores value under an identifier minted by another peer,
// used when materializing an object that was created remotely. Fails with
// ErrDuplicateSyncID when the id is already present.
func (a *Arena[T, D, P]) InsertKnown(value T, id SyncID) (Handle, error) {
	if _, ok := a.byID[id]; ok {
		return Handle{}, ErrDuplicateSyncID
	}
	return a.insert(value, id), nil
}

func (a *Arena[T, D, P]) insert(value T, id SyncID) Handle {
	i, ok := a.alloc()
	if !ok {
		n := len(a.slots)
		if n == 0 {
			n = defaultCapacity
		}
		a.grow(n)
		i, ok = a.alloc()
		if !ok {
			panic("arena: allocation failed after grow")
		}
	}
	a.slots[i] = slot[T]{occupied: true, generation: a.generation, syncID: id, value: value}
	if a.byID == nil {
		a.byID = make(map[SyncID]slotAddr)
	}
	a.byID[id] = slotAddr{index: i, generation: a.generation}
	return HandleFromParts(i, a.generation, id)
}

// alloc pops the free list head. It reports false when the arena has no
// free slot, in which case the caller grows first.
func (a *Arena[T, D, P]) alloc() (uint32, bool) {
	if len(a.slots) == 0 || a.freeHead < 0 {
		return 0, false
	}
	if int(a.freeHead) >= len(a.slots) {
		panic("arena: corrupt free list")
	}
	i := uint32(a.freeHead)
	s := &a.slots[i]
	if s.occupied {
		panic("arena: corrupt free list")
	}
	a.freeHead = s.nextFree
	a.length++
	return i, true
}

// grow appends additional free slots, chaining them ahead of the current
// free list so fresh capacity is consumed before older recycled slots.
func (a *Arena[T, D, P]) grow(additional int) {
	start := len(a.slots)
	end := start + additional
	oldHead := a.freeHead
	if start == 0 {
		oldHead = -1
	}
	for i := start; i < end; i++ {
		next := int32(i + 1)
		if i == end-1 {
			next = oldHead
		}
		a.slots = append(a.slots, slot[T]{nextFree: next})
	}
	a.freeHead = int32(start)
}

// Remove frees the slot behind h and returns its value. It reports false
// for stale handles, unknown ids, and already-freed slots; a missing
// object is "already gone", never an error. A successful removal bumps
// the arena generation and unregisters the SyncID.
func (a *Arena[T, D, P]) Remove(h *Handle) (T, bool) {
	var zero T
	if !a.resolve(h) {
		return zero, false
	}
	if int(h.index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[h.index]
	if !s.occupied || s.generation != h.generation {
		return zero, false
	}
	value := s.value
	id := s.syncID
	*s = slot[T]{nextFree: a.freeHead}
	a.generation++
	a.freeHead = int32(h.index)
	a.length--
	if _, ok := a.byID[id]; !ok {
		panic("arena: sync id missing from index map during remove")
	}
	delete(a.byID, id)
	return value, true
}

// Get returns a pointer to the value behind h, resolving and caching the
// handle's local coordinates when it arrived from the wire. It reports
// false for stale handles and ids unknown to this arena; an unknown id
// leaves the handle unresolved so a later lookup can succeed once the
// object materializes.
func (a *Arena[T, D, P]) Get(h *Handle) (*T, bool) {
	if !a.resolve(h) {
		return nil, false
	}
	if int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.index]
	// No sync id recheck: a (index, generation) pair only ever maps to one
	// object lifetime.
	if !s.occupied || s.generation != h.generation {
		return nil, false
	}
	return &s.value, true
}

// Contains reports whether h currently resolves to a live object.
func (a *Arena[T, D, P]) Contains(h *Handle) bool {
	_, ok := a.Get(h)
	return ok
}

func (a *Arena[T, D, P]) resolve(h *Handle) bool {
	if h.resolved {
		return true
	}
	addr, ok := a.byID[h.SyncID]
	if !ok {
		return false
	}
	h.index = addr.index
	h.generation = addr.generation
	h.resolved = true
	return true
}

// All calls fn for every live object until fn returns false. Order is
// slot order, not insertion order; callers must not rely on it.
func (a *Arena[T, D, P]) All(fn func(Handle, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(HandleFromParts(uint32(i), s.generation, s.syncID), &s.value) {
			return
		}
	}
}

// ArenaDelta carries the changes between two snapshots of one arena
// lineage, keyed by SyncID. Altered holds nested deltas for surviving
// objects plus identity diffs for new ones; Removed lists objects absent
// from the next snapshot.
type ArenaDelta[D delta.Delta] struct {
	Altered map[SyncID]D `cbor:"altered,omitempty"`
	Removed []SyncID     `cbor:"removed,omitempty"`
}

// Empty reports whether applying the delta would change nothing.
func (d ArenaDelta[D]) Empty() bool {
	return len(d.Altered) == 0 && len(d.Removed) == 0
}

// Diff reconciles the receiver (previous snapshot) against next with no
// ownership filter. Both arenas must belong to the same lineage: next
// evolved from the receiver (or a clone of it) by local operations, so
// local coordinates agree between the two.
func (a *Arena[T, D, P]) Diff(next *Arena[T, D, P]) ArenaDelta[D] {
	return a.DiffOwned(next, nil)
}

// DiffOwned is Diff restricted to objects the local peer owns: ids for
// which owns reports false appear in neither Altered nor Removed, so
// mirrored objects are never diffed outward. A nil owns diffs everything.
func (a *Arena[T, D, P]) DiffOwned(next *Arena[T, D, P], owns func(SyncID) bool) ArenaDelta[D] {
	var d ArenaDelta[D]
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if owns != nil && !owns(s.syncID) {
			continue
		}
		h := HandleFromParts(uint32(i), s.generation, s.syncID)
		nv, ok := next.Get(&h)
		if !ok {
			d.Removed = append(d.Removed, s.syncID)
			continue
		}
		dd := P(&s.value).Diff(nv)
		if dd.Empty() {
			continue
		}
		if d.Altered == nil {
			d.Altered = make(map[SyncID]D)
		}
		d.Altered[s.syncID] = dd
	}
	for i := range next.slots {
		s := &next.slots[i]
		if !s.occupied {
			continue
		}
		if owns != nil && !owns(s.syncID) {
			continue
		}
		h := HandleFromParts(uint32(i), s.generation, s.syncID)
		if _, ok := a.Get(&h); ok {
			continue
		}
		var identity T
		if d.Altered == nil {
			d.Altered = make(map[SyncID]D)
		}
		d.Altered[s.syncID] = P(&identity).Diff(&s.value)
	}
	return d
}

// Apply replays a delta onto the arena: removals first, then altered
// entries. Composite callers that order removals across several arenas
// use ApplyRemoved and ApplyAltered directly.
func (a *Arena[T, D, P]) Apply(d *ArenaDelta[D]) {
	a.ApplyRemoved(d.Removed)
	a.ApplyAltered(d.Altered)
}

// ApplyRemoved removes every listed object. Unknown ids are tolerated as
// already gone.
func (a *Arena[T, D, P]) ApplyRemoved(ids []SyncID) {
	for _, id := range ids {
		h := Remote(id)
		a.Remove(&h)
	}
}

// ApplyAltered applies nested deltas to existing objects and materializes
// unknown ids from the identity value under their remote-assigned SyncID.
// Unknown ids are inserted in ascending order, never in map order: two
// snapshots of one lineage applying the same delta must end up with
// identical slot layouts, or a later diff between them would read values
// through mismatched local coordinates.
func (a *Arena[T, D, P]) ApplyAltered(altered map[SyncID]D) {
	var missing []SyncID
	for id, dd := range altered {
		h := Remote(id)
		if v, ok := a.Get(&h); ok {
			P(v).Apply(&dd)
			continue
		}
		missing = append(missing, id)
	}
	slices.Sort(missing)
	for _, id := range missing {
		dd := altered[id]
		var v T
		P(&v).Apply(&dd)
		if _, err := a.InsertKnown(v, id); err != nil {
			panic("arena: insert after failed lookup: " + err.Error())
		}
	}
}

// Clone returns a deep copy sharing no state with the receiver. Slot
// layout, generations and the free list carry over, so handles resolved
// against the original stay valid against the clone.
func (a *Arena[T, D, P]) Clone() Arena[T, D, P] {
	out := Arena[T, D, P]{
		generation: a.generation,
		freeHead:   a.freeHead,
		length:     a.length,
	}
	if a.slots != nil {
		out.slots = make([]slot[T], len(a.slots))
		for i := range a.slots {
			s := a.slots[i]
			if s.occupied {
				s.value = P(&s.value).Clone()
			}
			out.slots[i] = s
		}
	}
	if a.byID != nil {
		out.byID = make(map[SyncID]slotAddr, len(a.byID))
		for id, addr := range a.byID {
			out.byID[id] = addr
		}
	}
	return out
}
