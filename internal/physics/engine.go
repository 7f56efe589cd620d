// Package physics defines the replication layer's view of a physics
// engine and the bridge that keeps an engine and a replicated world in
// step. The engine is a collaborator: it owns integration, collision and
// constraint solving, and hands out opaque handles. Replication never
// stores physical state beyond the proxy fields that cross the wire.
package physics

import "tumble/engine/internal/world"

// BodyHandle names a rigid body inside an engine. Zero is never handed
// out and means "no body".
type BodyHandle uint64

// ShapeHandle names a collision shape inside an engine.
type ShapeHandle uint64

// JointHandle names a constraint inside an engine.
type JointHandle uint64

// BodyState is the motion state read from and written to an engine body.
type BodyState struct {
	Position        world.Vec2
	Velocity        world.Vec2
	Rotation        float64
	AngularVelocity float64
}

// BodyDef describes a body at creation time.
type BodyDef struct {
	Kind  world.BodyKind
	State BodyState
}

// ShapeDef describes a cuboid collider at creation time.
type ShapeDef struct {
	HalfExtents world.Vec2
	Restitution float64
	Mass        float64
	Groups      uint32
	Filter      uint32
}

// JointDef describes a constraint between two bodies at creation time.
type JointDef struct {
	BodyA   BodyHandle
	BodyB   BodyHandle
	AnchorA world.Vec2
	AnchorB world.Vec2
	Kind    world.JointKind
}

// Engine is the capability surface replication needs from a physics
// engine: handle-keyed insertion, removal and mutation plus a point
// query. Implementations are not required to be goroutine safe; the
// bridge drives one engine from one tick loop.
type Engine interface {
	// Step advances the simulation by dt seconds.
	Step(dt float64)

	CreateBody(def BodyDef) BodyHandle
	RemoveBody(h BodyHandle)
	BodyState(h BodyHandle) (BodyState, bool)
	SetBodyState(h BodyHandle, s BodyState)
	SetBodyKind(h BodyHandle, k world.BodyKind)

	CreateShape(body BodyHandle, def ShapeDef) ShapeHandle
	RemoveShape(h ShapeHandle)

	CreateJoint(def JointDef) JointHandle
	RemoveJoint(h JointHandle)

	// QueryPoint returns the bodies whose shapes cover p. Order is
	// engine-defined.
	QueryPoint(p world.Vec2) []BodyHandle
}
