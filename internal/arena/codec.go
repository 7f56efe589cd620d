package arena

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The arena serializes structurally: every slot travels, free or occupied,
// together with the generation counter and free list head. A peer
// bootstrapping from a snapshot therefore reconstructs the exact slot
// layout of the sender, and local handles minted on either side afterwards
// stay disjoint per lineage. The SyncID index is derived, not transmitted.

type slotWire[T any] struct {
	Occupied   bool   `cbor:"o"`
	NextFree   int32  `cbor:"n"`
	Generation uint32 `cbor:"g"`
	SyncID     SyncID `cbor:"id"`
	Value      *T     `cbor:"v,omitempty"`
}

type arenaWire[T any] struct {
	Slots      []slotWire[T] `cbor:"slots"`
	Generation uint32        `cbor:"gen"`
	FreeHead   int32         `cbor:"free"`
}

// MarshalCBOR encodes the arena's full slot structure.
func (a *Arena[T, D, P]) MarshalCBOR() ([]byte, error) {
	w := arenaWire[T]{Generation: a.generation, FreeHead: a.freeHead}
	if len(a.slots) == 0 {
		w.FreeHead = -1
	} else {
		w.Slots = make([]slotWire[T], len(a.slots))
		for i := range a.slots {
			s := &a.slots[i]
			sw := slotWire[T]{
				Occupied:   s.occupied,
				NextFree:   s.nextFree,
				Generation: s.generation,
				SyncID:     s.syncID,
			}
			if s.occupied {
				v := s.value
				sw.Value = &v
			}
			w.Slots[i] = sw
		}
	}
	return cbor.Marshal(w)
}

// UnmarshalCBOR decodes and validates a slot structure. Payloads that
// violate arena invariants (duplicate SyncIDs, free list reaching an
// occupied or out-of-range slot, free list cycles) are rejected as errors
// rather than deferred to a later panic, so a malformed snapshot from a
// peer stays a per-peer failure.
func (a *Arena[T, D, P]) UnmarshalCBOR(data []byte) error {
	var w arenaWire[T]
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	slots := make([]slot[T], len(w.Slots))
	byID := make(map[SyncID]slotAddr, len(w.Slots))
	length := 0
	for i, sw := range w.Slots {
		if !sw.Occupied {
			slots[i] = slot[T]{nextFree: sw.NextFree}
			continue
		}
		if sw.Value == nil {
			return fmt.Errorf("arena: occupied slot %d has no value", i)
		}
		if _, dup := byID[sw.SyncID]; dup {
			return fmt.Errorf("arena: duplicate sync id %s", sw.SyncID)
		}
		slots[i] = slot[T]{occupied: true, generation: sw.Generation, syncID: sw.SyncID, value: *sw.Value}
		byID[sw.SyncID] = slotAddr{index: uint32(i), generation: sw.Generation}
		length++
	}
	if err := checkFreeList(slots, w.FreeHead); err != nil {
		return err
	}
	a.slots = slots
	a.generation = w.Generation
	a.freeHead = w.FreeHead
	a.length = length
	a.byID = byID
	return nil
}

func checkFreeList[T any](slots []slot[T], head int32) error {
	seen := 0
	for cur := head; cur != -1; {
		if cur < 0 || int(cur) >= len(slots) {
			return fmt.Errorf("arena: free list index %d out of range", cur)
		}
		s := &slots[cur]
		if s.occupied {
			return fmt.Errorf("arena: free list reaches occupied slot %d", cur)
		}
		seen++
		if seen > len(slots) {
			return fmt.Errorf("arena: free list cycle")
		}
		cur = s.nextFree
	}
	return nil
}
