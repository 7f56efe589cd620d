package world

import (
	"tumble/engine/internal/arena"
	"tumble/engine/internal/delta"
)

// JointKind selects the constraint flavor solved by the physics engine.
type JointKind uint8

const (
	JointFixed JointKind = iota
	JointRevolute
	JointPrismatic
)

func (k JointKind) String() string {
	switch k {
	case JointFixed:
		return "fixed"
	case JointRevolute:
		return "revolute"
	case JointPrismatic:
		return "prismatic"
	default:
		return "unknown"
	}
}

// Joint is the replicated proxy of one constraint between two bodies.
// Both body references travel as SyncIDs and resolve lazily, so a joint
// can arrive in the same delta as the bodies it connects.
type Joint struct {
	BodyA   arena.Handle `cbor:"a"`
	BodyB   arena.Handle `cbor:"b"`
	AnchorA Vec2         `cbor:"anchor_a"`
	AnchorB Vec2         `cbor:"anchor_b"`
	Kind    JointKind    `cbor:"kind"`
	Owner   PeerID       `cbor:"owner"`
}

// JointDelta holds one option per Joint field; nil means unchanged.
type JointDelta struct {
	BodyA   arena.HandleDelta `cbor:"a,omitempty"`
	BodyB   arena.HandleDelta `cbor:"b,omitempty"`
	AnchorA *Vec2             `cbor:"anchor_a,omitempty"`
	AnchorB *Vec2             `cbor:"anchor_b,omitempty"`
	Kind    *JointKind        `cbor:"kind,omitempty"`
	Owner   *PeerID           `cbor:"owner,omitempty"`
}

func (d JointDelta) Empty() bool {
	return d.BodyA.Empty() && d.BodyB.Empty() && d.AnchorA == nil &&
		d.AnchorB == nil && d.Kind == nil && d.Owner == nil
}

func (j *Joint) Diff(next *Joint) JointDelta {
	return JointDelta{
		BodyA:   j.BodyA.Diff(&next.BodyA),
		BodyB:   j.BodyB.Diff(&next.BodyB),
		AnchorA: delta.Changed(j.AnchorA, next.AnchorA),
		AnchorB: delta.Changed(j.AnchorB, next.AnchorB),
		Kind:    delta.Changed(j.Kind, next.Kind),
		Owner:   delta.Changed(j.Owner, next.Owner),
	}
}

func (j *Joint) Apply(d *JointDelta) {
	j.BodyA.Apply(&d.BodyA)
	j.BodyB.Apply(&d.BodyB)
	delta.Assign(&j.AnchorA, d.AnchorA)
	delta.Assign(&j.AnchorB, d.AnchorB)
	delta.Assign(&j.Kind, d.Kind)
	delta.Assign(&j.Owner, d.Owner)
}

func (j *Joint) Clone() Joint { return *j }

// JointArena stores the replicated joints of one world.
type JointArena = arena.Arena[Joint, JointDelta, *Joint]
