package physics

import (
	"tumble/engine/internal/arena"
	"tumble/engine/internal/world"
)

// Bridge reconciles one Engine with one replicated world. It owns the
// SyncID to engine-handle maps and defers every physical computation to
// the engine. The tick order is Step, Pull, network sync, Push: Pull
// copies engine motion into the proxies this peer owns so the next diff
// carries it, and Push reconciles the engine against the proxies after
// remote deltas landed.
//
// A world without an ownership record is treated as fully local: every
// proxy is pulled and none is overwritten by Push.
type Bridge struct {
	engine Engine
	bodies map[arena.SyncID]BodyHandle
	shapes map[arena.SyncID]ShapeHandle
	joints map[arena.SyncID]JointHandle
}

// NewBridge wraps e with empty handle maps.
func NewBridge(e Engine) *Bridge {
	return &Bridge{
		engine: e,
		bodies: make(map[arena.SyncID]BodyHandle),
		shapes: make(map[arena.SyncID]ShapeHandle),
		joints: make(map[arena.SyncID]JointHandle),
	}
}

// Engine returns the wrapped engine.
func (b *Bridge) Engine() Engine { return b.engine }

// BodyFor resolves a replicated body id to its engine handle.
func (b *Bridge) BodyFor(id arena.SyncID) (BodyHandle, bool) {
	h, ok := b.bodies[id]
	return h, ok
}

// Stats reports the number of engine objects the bridge tracks.
func (b *Bridge) Stats() (bodies, shapes, joints int) {
	return len(b.bodies), len(b.shapes), len(b.joints)
}

func ownsBody(o *world.Ownership, id arena.SyncID) bool {
	return o == nil || o.Bodies.Has(id)
}

func bodyState(body *world.Body) BodyState {
	return BodyState{
		Position:        body.Position,
		Velocity:        body.Velocity,
		Rotation:        body.Rotation,
		AngularVelocity: body.AngularVelocity,
	}
}

// Pull copies engine motion state into every owned body proxy.
func (b *Bridge) Pull(w *world.World) {
	o := w.Owned()
	w.Bodies.All(func(h arena.Handle, body *world.Body) bool {
		if !ownsBody(o, h.SyncID) {
			return true
		}
		eh, ok := b.bodies[h.SyncID]
		if !ok {
			return true
		}
		st, ok := b.engine.BodyState(eh)
		if !ok {
			return true
		}
		body.Position = st.Position
		body.Velocity = st.Velocity
		body.Rotation = st.Rotation
		body.AngularVelocity = st.AngularVelocity
		return true
	})
}

// Push reconciles the engine against the world: proxies without engine
// counterparts get them created, engine objects whose proxies vanished
// are removed, and mirrored motion state is written through. Shapes and
// joints whose body proxies have not materialized yet are retried on the
// next Push. Dependents the engine cascades away with a removed body are
// untracked the same way, so a surviving proxy is re-created once its
// body returns.
func (b *Bridge) Push(w *world.World) {
	o := w.Owned()

	w.Bodies.All(func(h arena.Handle, body *world.Body) bool {
		eh, ok := b.bodies[h.SyncID]
		if !ok {
			b.bodies[h.SyncID] = b.engine.CreateBody(BodyDef{Kind: body.Kind, State: bodyState(body)})
			return true
		}
		if ownsBody(o, h.SyncID) {
			return true
		}
		b.engine.SetBodyKind(eh, body.Kind)
		b.engine.SetBodyState(eh, bodyState(body))
		return true
	})

	w.Shapes.All(func(h arena.Handle, shape *world.Shape) bool {
		if _, ok := b.shapes[h.SyncID]; ok {
			return true
		}
		beh, ok := b.bodies[shape.Body.SyncID]
		if !ok {
			return true
		}
		b.shapes[h.SyncID] = b.engine.CreateShape(beh, ShapeDef{
			HalfExtents: shape.HalfExtents,
			Restitution: shape.Restitution,
			Mass:        shape.Mass,
			Groups:      shape.Groups,
			Filter:      shape.Filter,
		})
		return true
	})

	w.Joints.All(func(h arena.Handle, joint *world.Joint) bool {
		if _, ok := b.joints[h.SyncID]; ok {
			return true
		}
		bea, okA := b.bodies[joint.BodyA.SyncID]
		beb, okB := b.bodies[joint.BodyB.SyncID]
		if !okA || !okB {
			return true
		}
		b.joints[h.SyncID] = b.engine.CreateJoint(JointDef{
			BodyA:   bea,
			BodyB:   beb,
			AnchorA: joint.AnchorA,
			AnchorB: joint.AnchorB,
			Kind:    joint.Kind,
		})
		return true
	})

	// Dependents go before bodies so the engine never cascades a handle
	// the maps still track.
	for id, eh := range b.joints {
		h := arena.Remote(id)
		if !w.Joints.Contains(&h) {
			b.engine.RemoveJoint(eh)
			delete(b.joints, id)
		}
	}
	for id, eh := range b.shapes {
		h := arena.Remote(id)
		if !w.Shapes.Contains(&h) {
			b.engine.RemoveShape(eh)
			delete(b.shapes, id)
		}
	}
	var removed map[arena.SyncID]bool
	for id, eh := range b.bodies {
		h := arena.Remote(id)
		if !w.Bodies.Contains(&h) {
			b.engine.RemoveBody(eh)
			delete(b.bodies, id)
			if removed == nil {
				removed = make(map[arena.SyncID]bool)
			}
			removed[id] = true
		}
	}
	if removed == nil {
		return
	}

	// The engine cascade destroyed every dependent of those bodies, even
	// ones whose proxies survive.
	for id := range b.shapes {
		h := arena.Remote(id)
		if shape, ok := w.Shapes.Get(&h); ok && removed[shape.Body.SyncID] {
			delete(b.shapes, id)
		}
	}
	for id := range b.joints {
		h := arena.Remote(id)
		if joint, ok := w.Joints.Get(&h); ok && (removed[joint.BodyA.SyncID] || removed[joint.BodyB.SyncID]) {
			delete(b.joints, id)
		}
	}
}
