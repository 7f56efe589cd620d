package arena

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// SyncID names one logical object for the lifetime of a session, across
// every peer, independent of where the object is stored locally. IDs are
// drawn from a random source, never a counter, so peers can mint them
// without coordination. Zero is reserved as "no object".
type SyncID uint64

// NewSyncID mints a fresh identifier from the upper 64 bits of a random
// UUID.
func NewSyncID() SyncID {
	u := uuid.New()
	return SyncID(binary.BigEndian.Uint64(u[:8]))
}

func (id SyncID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Handle addresses an object in an Arena. It is a plain value type: the
// SyncID is the cross-process ground truth, while index and generation are
// process-local coordinates. A handle built locally carries valid
// coordinates; a handle received over the wire carries only the SyncID and
// is resolved lazily (and cached in place) on first lookup. A handle whose
// generation no longer matches its slot is stale: the object was removed,
// possibly with the slot since reused, and every lookup reports absence.
type Handle struct {
	index      uint32
	generation uint32
	resolved   bool
	SyncID     SyncID
}

// HandleFromParts rebuilds a resolved handle from raw coordinates. The
// parts must originate from the same arena the handle will be used with.
func HandleFromParts(index, generation uint32, id SyncID) Handle {
	return Handle{index: index, generation: generation, resolved: true, SyncID: id}
}

// Remote returns an unresolved handle carrying only the cross-process
// identifier, as if it had just arrived over the wire.
func Remote(id SyncID) Handle {
	return Handle{SyncID: id}
}

// Resolved reports whether the handle carries cached local coordinates.
func (h Handle) Resolved() bool {
	return h.resolved
}

// Nil reports whether the handle names no object.
func (h Handle) Nil() bool {
	return h.SyncID == 0
}

func (h Handle) String() string {
	if !h.resolved {
		return fmt.Sprintf("handle(%s unresolved)", h.SyncID)
	}
	return fmt.Sprintf("handle(%s @%d g%d)", h.SyncID, h.index, h.generation)
}

// MarshalCBOR encodes the handle as its bare SyncID. Local coordinates
// never cross a process boundary.
func (h Handle) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(uint64(h.SyncID))
}

// UnmarshalCBOR decodes a bare SyncID into an unresolved handle.
func (h *Handle) UnmarshalCBOR(data []byte) error {
	var id uint64
	if err := cbor.Unmarshal(data, &id); err != nil {
		return err
	}
	*h = Handle{SyncID: SyncID(id)}
	return nil
}

// HandleDelta is the delta form of a Handle. Only the SyncID is compared:
// two handles naming the same object are equal no matter how their local
// coordinates differ between processes.
type HandleDelta struct {
	SyncID *SyncID `cbor:"id,omitempty"`
}

// Empty reports whether applying the delta would change nothing.
func (d HandleDelta) Empty() bool {
	return d.SyncID == nil
}

// Diff compares the receiver against next by SyncID.
func (h *Handle) Diff(next *Handle) HandleDelta {
	var d HandleDelta
	if h.SyncID != next.SyncID {
		id := next.SyncID
		d.SyncID = &id
	}
	return d
}

// Apply rewrites the handle to name the delta's object. The handle becomes
// unresolved; local coordinates are recovered on first lookup.
func (h *Handle) Apply(d *HandleDelta) {
	if d.SyncID == nil {
		return
	}
	*h = Handle{SyncID: *d.SyncID}
}

// Clone returns a copy of the handle.
func (h *Handle) Clone() Handle {
	return *h
}
