// The sandbox is a headless demo peer: it dials the relay, drops a few
// owned boxes and a pendulum into the shared world, and runs the client
// tick loop until interrupted. SIGUSR1 arms the delta capture.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"tumble/engine/internal/arena"
	"tumble/engine/internal/capture"
	"tumble/engine/internal/netsync"
	"tumble/engine/internal/physics"
	"tumble/engine/internal/telemetry"
	"tumble/engine/internal/world"
)

type config struct {
	URL        string `env:"SANDBOX_URL" envDefault:"ws://localhost:8335/ws"`
	TickRate   int    `env:"SANDBOX_TICK_RATE" envDefault:"20"`
	CaptureDir string `env:"SANDBOX_CAPTURE_DIR" envDefault:"captures"`
	Bodies     int    `env:"SANDBOX_BODIES" envDefault:"3"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	if cfg.TickRate <= 0 {
		log.Fatalf("SANDBOX_TICK_RATE must be positive, got %d", cfg.TickRate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	logger := log.Default()
	id := fmt.Sprintf("sandbox-%d", os.Getpid())

	capt := capture.New(cfg.CaptureDir, telemetry.WrapLogger(logger))
	armed := make(chan os.Signal, 1)
	signal.Notify(armed, syscall.SIGUSR1)
	defer signal.Stop(armed)

	w := &world.World{}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := netsync.Dial[world.World, world.WorldDelta, *world.World](
		dialCtx, cfg.URL+"?id="+id, w,
		netsync.ClientConfig[world.WorldDelta]{
			Logger: logger,
			Observe: func(d *world.WorldDelta) {
				capt.Observe(d)
			},
		})
	if err != nil {
		return err
	}
	defer client.Close()

	owned := world.NewOwnership(world.PeerID(id))
	w.SetOwned(owned)
	spawnScene(w, owned, cfg.Bodies)

	engine := physics.NewKinematic()
	bridge := physics.NewBridge(engine)

	interval := time.Second / time.Duration(cfg.TickRate)
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	summary := time.NewTicker(2 * time.Second)
	defer summary.Stop()

	logger.Printf("sandbox %s connected to %s", id, cfg.URL)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-armed:
			capt.Arm()
			logger.Printf("capture armed, next outbound delta will be dumped")
		case <-summary.C:
			logger.Printf("world: %s", summarize(w, engine))
		case <-ticker.C:
			engine.Gravity = w.Gravity
			applyFields(w, bridge, engine, dt)
			engine.Step(dt)
			bridge.Pull(w)
			if err := client.Sync(w); err != nil {
				return err
			}
			bridge.Push(w)
		}
	}
}

// spawnScene drops a column of falling boxes plus a pendulum so every
// replicated object kind is exercised.
func spawnScene(w *world.World, owned *world.Ownership, boxes int) {
	if boxes <= 0 {
		boxes = 1
	}
	for i := 0; i < boxes; i++ {
		body := w.Bodies.Insert(world.Body{
			Position: world.Vec2{X: float64(2*i) - float64(boxes-1), Y: 10 + 3*float64(i)},
			Kind:     world.BodyDynamic,
			Owner:    owned.Peer,
		})
		owned.Bodies.Add(body.SyncID)

		shape := w.Shapes.Insert(world.Shape{
			Body:        body,
			HalfExtents: world.Vec2{X: 0.5, Y: 0.5},
			Mass:        1,
			Owner:       owned.Peer,
		})
		owned.Shapes.Add(shape.SyncID)
	}

	pivot := w.Bodies.Insert(world.Body{
		Position: world.Vec2{Y: 6},
		Kind:     world.BodyFixed,
		Owner:    owned.Peer,
	})
	owned.Bodies.Add(pivot.SyncID)

	bob := w.Bodies.Insert(world.Body{
		Position: world.Vec2{X: 2, Y: 6},
		Kind:     world.BodyDynamic,
		Owner:    owned.Peer,
	})
	owned.Bodies.Add(bob.SyncID)

	joint := w.Joints.Insert(world.Joint{
		BodyA:   pivot,
		BodyB:   bob,
		AnchorB: world.Vec2{X: -2},
		Kind:    world.JointRevolute,
		Owner:   owned.Peer,
	})
	owned.Joints.Add(joint.SyncID)
}

// applyFields accelerates owned dynamic bodies sitting inside enabled
// force fields. The impulse goes into the engine so Step integrates it.
func applyFields(w *world.World, bridge *physics.Bridge, engine physics.Engine, dt float64) {
	if w.Fields.Len() == 0 {
		return
	}
	o := w.Owned()
	w.Bodies.All(func(h arena.Handle, body *world.Body) bool {
		if body.Kind != world.BodyDynamic {
			return true
		}
		if o != nil && !o.Bodies.Has(h.SyncID) {
			return true
		}
		eh, ok := bridge.BodyFor(h.SyncID)
		if !ok {
			return true
		}
		st, ok := engine.BodyState(eh)
		if !ok {
			return true
		}
		var accel world.Vec2
		w.Fields.All(func(name string, f world.ForceField) bool {
			if f.Enabled && f.Covers(st.Position) {
				accel = accel.Add(f.Accel)
			}
			return true
		})
		if accel == (world.Vec2{}) {
			return true
		}
		st.Velocity = st.Velocity.Add(accel.Scale(dt))
		engine.SetBodyState(eh, st)
		return true
	})
}

func summarize(w *world.World, engine *physics.Kinematic) string {
	lowest := 0.0
	first := true
	w.Bodies.All(func(h arena.Handle, b *world.Body) bool {
		if first || b.Position.Y < lowest {
			lowest = b.Position.Y
			first = false
		}
		return true
	})
	return fmt.Sprintf("bodies=%d shapes=%d joints=%d fields=%d engine=%d lowestY=%.2f",
		w.Bodies.Len(), w.Shapes.Len(), w.Joints.Len(), w.Fields.Len(),
		engine.BodyCount(), lowest)
}
