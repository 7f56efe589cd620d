package physics

import (
	"testing"

	"tumble/engine/internal/arena"
	"tumble/engine/internal/world"
)

func TestBridgePushCreatesEngineObjects(t *testing.T) {
	k := NewKinematic()
	br := NewBridge(k)
	w := world.New()

	b1 := w.Bodies.Insert(world.Body{Position: world.Vec2{X: 1}, Kind: world.BodyDynamic})
	b2 := w.Bodies.Insert(world.Body{Position: world.Vec2{X: 4}, Kind: world.BodyFixed})
	w.Shapes.Insert(world.Shape{Body: b1, HalfExtents: world.Vec2{X: 0.5, Y: 0.5}})
	w.Joints.Insert(world.Joint{BodyA: b1, BodyB: b2})

	br.Push(w)

	bodies, shapes, joints := br.Stats()
	if bodies != 2 || shapes != 1 || joints != 1 {
		t.Fatalf("bridge tracks %d/%d/%d want 2/1/1", bodies, shapes, joints)
	}
	if k.BodyCount() != 2 {
		t.Fatalf("engine has %d bodies want 2", k.BodyCount())
	}
	eh, ok := br.BodyFor(b1.SyncID)
	if !ok {
		t.Fatalf("no engine handle for body %s", b1.SyncID)
	}
	st, ok := k.BodyState(eh)
	if !ok || st.Position != (world.Vec2{X: 1}) {
		t.Fatalf("engine body state %+v want position {1 0}", st)
	}
}

func TestBridgePullCopiesOwnedMotion(t *testing.T) {
	k := NewKinematic()
	k.Gravity = world.Vec2{Y: -10}
	br := NewBridge(k)

	w := world.New()
	owned := world.NewOwnership("p1")
	w.SetOwned(owned)

	mine := w.Bodies.Insert(world.Body{Kind: world.BodyDynamic, Owner: "p1"})
	owned.Bodies.Add(mine.SyncID)
	theirs, err := w.Bodies.InsertKnown(world.Body{Position: world.Vec2{X: 7}, Kind: world.BodyDynamic, Owner: "p2"}, 99)
	if err != nil {
		t.Fatalf("InsertKnown: %v", err)
	}

	br.Push(w)
	k.Step(0.5)
	br.Pull(w)

	body, ok := w.Bodies.Get(&mine)
	if !ok {
		t.Fatalf("owned body missing")
	}
	if body.Position.Y != -2.5 || body.Velocity.Y != -5 {
		t.Fatalf("owned proxy not pulled: pos %+v vel %+v", body.Position, body.Velocity)
	}

	// The mirror integrated inside the engine too, but its proxy only
	// changes when the owning peer says so.
	mirror, ok := w.Bodies.Get(&theirs)
	if !ok {
		t.Fatalf("mirror body missing")
	}
	if mirror.Position != (world.Vec2{X: 7}) {
		t.Fatalf("mirror proxy overwritten by pull: %+v", mirror.Position)
	}
}

func TestBridgePushWritesMirrorState(t *testing.T) {
	k := NewKinematic()
	br := NewBridge(k)

	w := world.New()
	w.SetOwned(world.NewOwnership("p1"))

	theirs, err := w.Bodies.InsertKnown(world.Body{Position: world.Vec2{X: 1}, Kind: world.BodyKinematicPosition, Owner: "p2"}, 77)
	if err != nil {
		t.Fatalf("InsertKnown: %v", err)
	}
	br.Push(w)

	// Apply the effect of an inbound delta, then reconcile.
	mirror, ok := w.Bodies.Get(&theirs)
	if !ok {
		t.Fatalf("mirror body missing")
	}
	mirror.Position = world.Vec2{X: 2.5, Y: 1}
	br.Push(w)

	eh, _ := br.BodyFor(77)
	st, ok := k.BodyState(eh)
	if !ok {
		t.Fatalf("engine body missing")
	}
	if st.Position != (world.Vec2{X: 2.5, Y: 1}) {
		t.Fatalf("mirror state not written through: %+v", st.Position)
	}
}

func TestBridgePushRemovesVanishedObjects(t *testing.T) {
	k := NewKinematic()
	br := NewBridge(k)
	w := world.New()

	b1 := w.Bodies.Insert(world.Body{Kind: world.BodyDynamic})
	b2 := w.Bodies.Insert(world.Body{Kind: world.BodyDynamic})
	sh := w.Shapes.Insert(world.Shape{Body: b1, HalfExtents: world.Vec2{X: 1, Y: 1}})
	jh := w.Joints.Insert(world.Joint{BodyA: b1, BodyB: b2})
	br.Push(w)

	if _, ok := w.Joints.Remove(&jh); !ok {
		t.Fatalf("joint removal failed")
	}
	if _, ok := w.Shapes.Remove(&sh); !ok {
		t.Fatalf("shape removal failed")
	}
	if _, ok := w.Bodies.Remove(&b2); !ok {
		t.Fatalf("body removal failed")
	}
	br.Push(w)

	bodies, shapes, joints := br.Stats()
	if bodies != 1 || shapes != 0 || joints != 0 {
		t.Fatalf("bridge tracks %d/%d/%d want 1/0/0", bodies, shapes, joints)
	}
	if k.BodyCount() != 1 {
		t.Fatalf("engine has %d bodies want 1", k.BodyCount())
	}
}

func TestBridgeDefersDependentsUntilBodiesExist(t *testing.T) {
	k := NewKinematic()
	br := NewBridge(k)
	w := world.New()

	// A shape referencing a body that has not materialized, as when the
	// proxies arrive in separate frames.
	w.Shapes.Insert(world.Shape{Body: arena.Remote(1234), HalfExtents: world.Vec2{X: 1, Y: 1}})
	br.Push(w)

	if _, shapes, _ := br.Stats(); shapes != 0 {
		t.Fatalf("shape created without its body")
	}

	if _, err := w.Bodies.InsertKnown(world.Body{Kind: world.BodyDynamic}, 1234); err != nil {
		t.Fatalf("InsertKnown: %v", err)
	}
	br.Push(w)

	if _, shapes, _ := br.Stats(); shapes != 1 {
		t.Fatalf("shape not created after body arrived")
	}
}

func TestBridgeBodyRemovalReleasesCascadedDependents(t *testing.T) {
	k := NewKinematic()
	br := NewBridge(k)
	w := world.New()

	body := w.Bodies.Insert(world.Body{Kind: world.BodyDynamic})
	w.Shapes.Insert(world.Shape{Body: body, HalfExtents: world.Vec2{X: 1, Y: 1}})
	br.Push(w)

	// The body proxy vanishes while the shape proxy survives, as when a
	// remote delta removes them across two frames. The engine cascades the
	// shape away with its body.
	id := body.SyncID
	if _, ok := w.Bodies.Remove(&body); !ok {
		t.Fatalf("body removal failed")
	}
	br.Push(w)

	if _, shapes, _ := br.Stats(); shapes != 0 {
		t.Fatalf("bridge still tracks a shape the engine cascade destroyed")
	}

	// The body returns under the same id; the orphaned shape proxy must be
	// re-created against it.
	if _, err := w.Bodies.InsertKnown(world.Body{Kind: world.BodyDynamic}, id); err != nil {
		t.Fatalf("InsertKnown: %v", err)
	}
	br.Push(w)

	if _, shapes, _ := br.Stats(); shapes != 1 {
		t.Fatalf("shape not re-created after its body returned")
	}
	if len(k.shapes) != 1 {
		t.Fatalf("engine has %d shapes want 1", len(k.shapes))
	}
}
