package physics

import "tumble/engine/internal/world"

type kinBody struct {
	kind  world.BodyKind
	state BodyState
}

type kinShape struct {
	body BodyHandle
	def  ShapeDef
}

// Kinematic is a reference Engine used by tests and the sandbox client.
// It integrates motion under gravity but resolves no contacts and solves
// no constraints; joints are tracked for handle bookkeeping only. A real
// engine binding implements the same interface.
type Kinematic struct {
	Gravity world.Vec2

	next   uint64
	bodies map[BodyHandle]*kinBody
	shapes map[ShapeHandle]kinShape
	joints map[JointHandle]JointDef
}

// NewKinematic returns an empty engine with earth gravity.
func NewKinematic() *Kinematic {
	return &Kinematic{
		Gravity: world.Vec2{Y: -9.81},
		bodies:  make(map[BodyHandle]*kinBody),
		shapes:  make(map[ShapeHandle]kinShape),
		joints:  make(map[JointHandle]JointDef),
	}
}

// Step advances every body by dt seconds. Dynamic bodies accelerate under
// gravity; velocity-kinematic bodies integrate their velocity unchanged;
// fixed and position-kinematic bodies do not move.
func (k *Kinematic) Step(dt float64) {
	for _, b := range k.bodies {
		switch b.kind {
		case world.BodyDynamic:
			b.state.Velocity = b.state.Velocity.Add(k.Gravity.Scale(dt))
			b.state.Position = b.state.Position.Add(b.state.Velocity.Scale(dt))
			b.state.Rotation += b.state.AngularVelocity * dt
		case world.BodyKinematicVelocity:
			b.state.Position = b.state.Position.Add(b.state.Velocity.Scale(dt))
			b.state.Rotation += b.state.AngularVelocity * dt
		}
	}
}

func (k *Kinematic) CreateBody(def BodyDef) BodyHandle {
	k.next++
	h := BodyHandle(k.next)
	k.bodies[h] = &kinBody{kind: def.Kind, state: def.State}
	return h
}

// RemoveBody drops the body along with any shapes attached to it and any
// joints referencing it, matching how engine bindings cascade.
func (k *Kinematic) RemoveBody(h BodyHandle) {
	if _, ok := k.bodies[h]; !ok {
		return
	}
	delete(k.bodies, h)
	for sh, s := range k.shapes {
		if s.body == h {
			delete(k.shapes, sh)
		}
	}
	for jh, j := range k.joints {
		if j.BodyA == h || j.BodyB == h {
			delete(k.joints, jh)
		}
	}
}

func (k *Kinematic) BodyState(h BodyHandle) (BodyState, bool) {
	b, ok := k.bodies[h]
	if !ok {
		return BodyState{}, false
	}
	return b.state, true
}

func (k *Kinematic) SetBodyState(h BodyHandle, s BodyState) {
	if b, ok := k.bodies[h]; ok {
		b.state = s
	}
}

func (k *Kinematic) SetBodyKind(h BodyHandle, kind world.BodyKind) {
	if b, ok := k.bodies[h]; ok {
		b.kind = kind
	}
}

func (k *Kinematic) CreateShape(body BodyHandle, def ShapeDef) ShapeHandle {
	k.next++
	h := ShapeHandle(k.next)
	k.shapes[h] = kinShape{body: body, def: def}
	return h
}

func (k *Kinematic) RemoveShape(h ShapeHandle) {
	delete(k.shapes, h)
}

func (k *Kinematic) CreateJoint(def JointDef) JointHandle {
	k.next++
	h := JointHandle(k.next)
	k.joints[h] = def
	return h
}

func (k *Kinematic) RemoveJoint(h JointHandle) {
	delete(k.joints, h)
}

// QueryPoint treats every collider as axis aligned at its body position;
// rotation is ignored, which is as coarse as the integrator itself.
func (k *Kinematic) QueryPoint(p world.Vec2) []BodyHandle {
	var hits []BodyHandle
	seen := make(map[BodyHandle]bool)
	for _, s := range k.shapes {
		b, ok := k.bodies[s.body]
		if !ok || seen[s.body] {
			continue
		}
		d := p.Sub(b.state.Position)
		if d.X >= -s.def.HalfExtents.X && d.X <= s.def.HalfExtents.X &&
			d.Y >= -s.def.HalfExtents.Y && d.Y <= s.def.HalfExtents.Y {
			seen[s.body] = true
			hits = append(hits, s.body)
		}
	}
	return hits
}

// BodyCount reports the number of live bodies, for diagnostics.
func (k *Kinematic) BodyCount() int { return len(k.bodies) }
