// Package world holds the replicated simulation state: arenas of rigid
// bodies, collision shapes and joints, plus keyed global force fields and
// scalar gravity. The composite World diffs and applies as a unit so one
// frame carries a consistent cross-section of every arena.
//
// Objects reference each other through arena handles, never pointers, so
// the whole World round-trips through CBOR and stays valid on the far side.
package world

import (
	"tumble/engine/internal/arena"
	"tumble/engine/internal/delta"
)

// IDSet is a set of sync ids, used to mark which objects a peer owns.
type IDSet map[arena.SyncID]struct{}

func (s IDSet) Add(id arena.SyncID) { s[id] = struct{}{} }

func (s IDSet) Has(id arena.SyncID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Remove(id arena.SyncID) { delete(s, id) }

// Ownership declares which objects this process is authoritative for.
// Objects outside the set are mirrors: they are updated by incoming deltas
// and excluded from outgoing ones. A world without ownership replicates
// everything, which is what the relay wants.
type Ownership struct {
	Peer   PeerID
	Bodies IDSet
	Shapes IDSet
	Joints IDSet
}

// NewOwnership returns an empty ownership record for the given peer.
func NewOwnership(peer PeerID) *Ownership {
	return &Ownership{
		Peer:   peer,
		Bodies: make(IDSet),
		Shapes: make(IDSet),
		Joints: make(IDSet),
	}
}

func (o *Ownership) bodyFilter() func(arena.SyncID) bool {
	if o == nil {
		return nil
	}
	return o.Bodies.Has
}

func (o *Ownership) shapeFilter() func(arena.SyncID) bool {
	if o == nil {
		return nil
	}
	return o.Shapes.Has
}

func (o *Ownership) jointFilter() func(arena.SyncID) bool {
	if o == nil {
		return nil
	}
	return o.Joints.Has
}

// World is the full replicated state. The zero value is usable; New adds
// default gravity.
type World struct {
	Bodies  BodyArena  `cbor:"bodies"`
	Shapes  ShapeArena `cbor:"shapes"`
	Joints  JointArena `cbor:"joints"`
	Fields  FieldMap   `cbor:"fields"`
	Gravity Vec2       `cbor:"gravity"`

	// owned marks the objects this process writes. It is local policy,
	// not state, so it stays off the wire and survives Apply untouched.
	owned *Ownership
}

// New returns a world with earth gravity and no objects.
func New() *World {
	return &World{Gravity: Vec2{Y: -9.81}}
}

// SetOwned installs the ownership record consulted by Diff. Passing nil
// reverts to unfiltered diffs.
func (w *World) SetOwned(o *Ownership) { w.owned = o }

// Owned returns the current ownership record, nil when unfiltered.
func (w *World) Owned() *Ownership { return w.owned }

// WorldDelta is the per-frame wire payload: one arena delta per object
// kind plus the keyed field map and gravity. Fields and gravity are relay
// state, so clients always see them unfiltered.
type WorldDelta struct {
	Bodies  arena.ArenaDelta[BodyDelta]             `cbor:"bodies,omitempty"`
	Shapes  arena.ArenaDelta[ShapeDelta]            `cbor:"shapes,omitempty"`
	Joints  arena.ArenaDelta[JointDelta]            `cbor:"joints,omitempty"`
	Fields  delta.MapDelta[string, ForceFieldDelta] `cbor:"fields,omitempty"`
	Gravity *Vec2                                   `cbor:"gravity,omitempty"`
}

func (d WorldDelta) Empty() bool {
	return d.Bodies.Empty() && d.Shapes.Empty() && d.Joints.Empty() &&
		d.Fields.Empty() && d.Gravity == nil
}

// Diff computes the delta transforming w into next, filtered by next's
// ownership record: only objects the caller owns appear in the result.
// Fields and gravity diff unconditionally. Both worlds must share a
// lineage, next having evolved from w or from a clone of w.
func (w *World) Diff(next *World) WorldDelta {
	o := next.owned
	return WorldDelta{
		Bodies:  w.Bodies.DiffOwned(&next.Bodies, o.bodyFilter()),
		Shapes:  w.Shapes.DiffOwned(&next.Shapes, o.shapeFilter()),
		Joints:  w.Joints.DiffOwned(&next.Joints, o.jointFilter()),
		Fields:  w.Fields.Diff(&next.Fields),
		Gravity: delta.Changed(w.Gravity, next.Gravity),
	}
}

// Apply replays a delta onto w. All removals run before any creation or
// update so a slot freed and refilled within one frame lands in the right
// order, and bodies materialize before the shapes and joints that
// reference them.
func (w *World) Apply(d *WorldDelta) {
	w.Bodies.ApplyRemoved(d.Bodies.Removed)
	w.Shapes.ApplyRemoved(d.Shapes.Removed)
	w.Joints.ApplyRemoved(d.Joints.Removed)
	w.Bodies.ApplyAltered(d.Bodies.Altered)
	w.Shapes.ApplyAltered(d.Shapes.Altered)
	w.Joints.ApplyAltered(d.Joints.Altered)
	w.Fields.Apply(&d.Fields)
	delta.Assign(&w.Gravity, d.Gravity)
}

// Clone deep-copies the state for diff baselines. The ownership record is
// shared, not copied, since both worlds describe the same peer.
func (w *World) Clone() World {
	return World{
		Bodies:  w.Bodies.Clone(),
		Shapes:  w.Shapes.Clone(),
		Joints:  w.Joints.Clone(),
		Fields:  w.Fields.Clone(),
		Gravity: w.Gravity,
		owned:   w.owned,
	}
}

// PruneBrokenJoints removes joints whose endpoints no longer exist, which
// happens when a remote delta deletes a body before the joint referencing
// it. Returns the number of joints dropped.
func (w *World) PruneBrokenJoints() int {
	pruned := 0
	sweep := arena.NewSweep(&w.Joints)
	defer sweep.Close()
	for {
		_, joint, ok := sweep.Next()
		if !ok {
			break
		}
		if w.Bodies.Contains(&joint.BodyA) && w.Bodies.Contains(&joint.BodyB) {
			sweep.Restore(joint)
		} else {
			pruned++
		}
	}
	return pruned
}
