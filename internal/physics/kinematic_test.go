package physics

import (
	"testing"

	"tumble/engine/internal/world"
)

func TestKinematicStepIntegratesDynamicBodies(t *testing.T) {
	k := NewKinematic()
	k.Gravity = world.Vec2{Y: -10}

	h := k.CreateBody(BodyDef{Kind: world.BodyDynamic})
	k.Step(0.5)

	st, ok := k.BodyState(h)
	if !ok {
		t.Fatalf("body vanished after step")
	}
	if st.Velocity.Y != -5 {
		t.Fatalf("velocity not integrated: got %v want -5", st.Velocity.Y)
	}
	if st.Position.Y != -2.5 {
		t.Fatalf("position not integrated: got %v want -2.5", st.Position.Y)
	}
}

func TestKinematicKindsRespectMotionRules(t *testing.T) {
	k := NewKinematic()
	k.Gravity = world.Vec2{Y: -10}

	fixed := k.CreateBody(BodyDef{Kind: world.BodyFixed, State: BodyState{Position: world.Vec2{X: 1}}})
	posKin := k.CreateBody(BodyDef{Kind: world.BodyKinematicPosition, State: BodyState{Velocity: world.Vec2{X: 3}}})
	velKin := k.CreateBody(BodyDef{Kind: world.BodyKinematicVelocity, State: BodyState{Velocity: world.Vec2{X: 2}}})

	k.Step(1)

	if st, _ := k.BodyState(fixed); st.Position != (world.Vec2{X: 1}) {
		t.Fatalf("fixed body moved: %+v", st.Position)
	}
	if st, _ := k.BodyState(posKin); st.Position != (world.Vec2{}) {
		t.Fatalf("position-kinematic body moved: %+v", st.Position)
	}
	st, _ := k.BodyState(velKin)
	if st.Position != (world.Vec2{X: 2}) {
		t.Fatalf("velocity-kinematic body at %+v want {2 0}", st.Position)
	}
	if st.Velocity != (world.Vec2{X: 2}) {
		t.Fatalf("velocity-kinematic body accelerated under gravity: %+v", st.Velocity)
	}
}

func TestKinematicRemoveBodyCascades(t *testing.T) {
	k := NewKinematic()
	a := k.CreateBody(BodyDef{Kind: world.BodyDynamic})
	bb := k.CreateBody(BodyDef{Kind: world.BodyDynamic})
	k.CreateShape(a, ShapeDef{HalfExtents: world.Vec2{X: 1, Y: 1}})
	k.CreateJoint(JointDef{BodyA: a, BodyB: bb})

	k.RemoveBody(a)

	if k.BodyCount() != 1 {
		t.Fatalf("body count after cascade: %d want 1", k.BodyCount())
	}
	if len(k.shapes) != 0 {
		t.Fatalf("shape survived body removal")
	}
	if len(k.joints) != 0 {
		t.Fatalf("joint survived body removal")
	}
	if hits := k.QueryPoint(world.Vec2{}); len(hits) != 0 {
		t.Fatalf("query hit removed body: %v", hits)
	}
}

func TestKinematicQueryPoint(t *testing.T) {
	k := NewKinematic()
	near := k.CreateBody(BodyDef{Kind: world.BodyFixed, State: BodyState{Position: world.Vec2{X: 1, Y: 1}}})
	far := k.CreateBody(BodyDef{Kind: world.BodyFixed, State: BodyState{Position: world.Vec2{X: 10}}})
	k.CreateShape(near, ShapeDef{HalfExtents: world.Vec2{X: 0.5, Y: 0.5}})
	k.CreateShape(far, ShapeDef{HalfExtents: world.Vec2{X: 0.5, Y: 0.5}})

	hits := k.QueryPoint(world.Vec2{X: 1.25, Y: 0.75})
	if len(hits) != 1 || hits[0] != near {
		t.Fatalf("query hits %v want [%d]", hits, near)
	}
	if hits := k.QueryPoint(world.Vec2{X: 5, Y: 5}); len(hits) != 0 {
		t.Fatalf("query in empty space hit %v", hits)
	}
}
