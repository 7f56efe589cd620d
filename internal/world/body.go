package world

import (
	"tumble/engine/internal/arena"
	"tumble/engine/internal/delta"
)

// PeerID tags a replicated object with its authoritative writer.
type PeerID string

// BodyKind mirrors the rigid body modes of the physics collaborator.
type BodyKind uint8

const (
	BodyDynamic BodyKind = iota
	BodyFixed
	BodyKinematicPosition
	BodyKinematicVelocity
)

func (k BodyKind) String() string {
	switch k {
	case BodyDynamic:
		return "dynamic"
	case BodyFixed:
		return "fixed"
	case BodyKinematicPosition:
		return "kinematic-position"
	case BodyKinematicVelocity:
		return "kinematic-velocity"
	default:
		return "unknown"
	}
}

// Body is the replicated proxy of one rigid body. The physics engine's
// native object stays behind the bridge; only these fields cross the wire.
type Body struct {
	Position        Vec2     `cbor:"pos"`
	Velocity        Vec2     `cbor:"vel"`
	Rotation        float64  `cbor:"rot"`
	AngularVelocity float64  `cbor:"avel"`
	Kind            BodyKind `cbor:"kind"`
	Owner           PeerID   `cbor:"owner"`
}

// BodyDelta holds one option per Body field; nil means unchanged.
type BodyDelta struct {
	Position        *Vec2     `cbor:"pos,omitempty"`
	Velocity        *Vec2     `cbor:"vel,omitempty"`
	Rotation        *float64  `cbor:"rot,omitempty"`
	AngularVelocity *float64  `cbor:"avel,omitempty"`
	Kind            *BodyKind `cbor:"kind,omitempty"`
	Owner           *PeerID   `cbor:"owner,omitempty"`
}

func (d BodyDelta) Empty() bool {
	return d.Position == nil && d.Velocity == nil && d.Rotation == nil &&
		d.AngularVelocity == nil && d.Kind == nil && d.Owner == nil
}

func (b *Body) Diff(next *Body) BodyDelta {
	return BodyDelta{
		Position:        delta.Changed(b.Position, next.Position),
		Velocity:        delta.Changed(b.Velocity, next.Velocity),
		Rotation:        delta.Changed(b.Rotation, next.Rotation),
		AngularVelocity: delta.Changed(b.AngularVelocity, next.AngularVelocity),
		Kind:            delta.Changed(b.Kind, next.Kind),
		Owner:           delta.Changed(b.Owner, next.Owner),
	}
}

func (b *Body) Apply(d *BodyDelta) {
	delta.Assign(&b.Position, d.Position)
	delta.Assign(&b.Velocity, d.Velocity)
	delta.Assign(&b.Rotation, d.Rotation)
	delta.Assign(&b.AngularVelocity, d.AngularVelocity)
	delta.Assign(&b.Kind, d.Kind)
	delta.Assign(&b.Owner, d.Owner)
}

func (b *Body) Clone() Body { return *b }

// BodyArena stores the replicated bodies of one world.
type BodyArena = arena.Arena[Body, BodyDelta, *Body]
