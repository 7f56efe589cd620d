package world

import (
	"tumble/engine/internal/arena"
	"tumble/engine/internal/delta"
)

// Shape is the replicated proxy of one collision shape, a cuboid attached
// to a body. The body reference is a sync handle: on the wire it is the
// peer-stable SyncID, and each peer resolves it against its own arena.
type Shape struct {
	Body        arena.Handle `cbor:"body"`
	HalfExtents Vec2         `cbor:"half"`
	Restitution float64      `cbor:"rest"`
	Mass        float64      `cbor:"mass"`
	Groups      uint32       `cbor:"groups"`
	Filter      uint32       `cbor:"filter"`
	Owner       PeerID       `cbor:"owner"`
}

// ShapeDelta holds one option per Shape field; nil means unchanged.
type ShapeDelta struct {
	Body        arena.HandleDelta `cbor:"body,omitempty"`
	HalfExtents *Vec2             `cbor:"half,omitempty"`
	Restitution *float64          `cbor:"rest,omitempty"`
	Mass        *float64          `cbor:"mass,omitempty"`
	Groups      *uint32           `cbor:"groups,omitempty"`
	Filter      *uint32           `cbor:"filter,omitempty"`
	Owner       *PeerID           `cbor:"owner,omitempty"`
}

func (d ShapeDelta) Empty() bool {
	return d.Body.Empty() && d.HalfExtents == nil && d.Restitution == nil &&
		d.Mass == nil && d.Groups == nil && d.Filter == nil && d.Owner == nil
}

func (s *Shape) Diff(next *Shape) ShapeDelta {
	return ShapeDelta{
		Body:        s.Body.Diff(&next.Body),
		HalfExtents: delta.Changed(s.HalfExtents, next.HalfExtents),
		Restitution: delta.Changed(s.Restitution, next.Restitution),
		Mass:        delta.Changed(s.Mass, next.Mass),
		Groups:      delta.Changed(s.Groups, next.Groups),
		Filter:      delta.Changed(s.Filter, next.Filter),
		Owner:       delta.Changed(s.Owner, next.Owner),
	}
}

func (s *Shape) Apply(d *ShapeDelta) {
	s.Body.Apply(&d.Body)
	delta.Assign(&s.HalfExtents, d.HalfExtents)
	delta.Assign(&s.Restitution, d.Restitution)
	delta.Assign(&s.Mass, d.Mass)
	delta.Assign(&s.Groups, d.Groups)
	delta.Assign(&s.Filter, d.Filter)
	delta.Assign(&s.Owner, d.Owner)
}

func (s *Shape) Clone() Shape { return *s }

// ShapeArena stores the replicated shapes of one world.
type ShapeArena = arena.Arena[Shape, ShapeDelta, *Shape]
