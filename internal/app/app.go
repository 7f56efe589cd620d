// Package app wires the relay daemon: configuration, the logging router,
// the replicated world with its physics bridge, the websocket relay and
// the HTTP surface, all driven by one tick loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tumble/engine/internal/arena"
	"tumble/engine/internal/capture"
	"tumble/engine/internal/netsync"
	"tumble/engine/internal/observability"
	"tumble/engine/internal/physics"
	"tumble/engine/internal/telemetry"
	"tumble/engine/internal/world"
	"tumble/engine/logging"
	"tumble/engine/logging/replication"
	loggingSinks "tumble/engine/logging/sinks"
)

// Run assembles the relay and drives its tick loop until ctx is canceled
// or the HTTP server fails.
func Run(ctx context.Context, cfg Config) error {
	logger := log.Default()

	router, closeSinkFiles, err := buildRouter(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer closeSinkFiles()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	counters := telemetry.NewCounters()
	capt := capture.New(cfg.CaptureDir, telemetry.WrapLogger(logger))

	w := world.New()
	owned := world.NewOwnership("relay")
	w.SetOwned(owned)
	seedScene(w, owned)

	engine := physics.NewKinematic()
	bridge := physics.NewBridge(engine)

	var server *netsync.Server[world.World, world.WorldDelta, *world.World]
	server = netsync.NewServer[world.World, world.WorldDelta, *world.World](netsync.ServerConfig[world.WorldDelta]{
		MaxFrameBytes: cfg.MaxFrameBytes,
		Logger:        logger,
		Publisher:     router,
		Counters:      counters,
		Inspect: func(peer string, d *world.WorldDelta) {
			objects := auditOwnership(w, peer, d)
			if len(objects) == 0 {
				return
			}
			counters.RecordViolations(len(objects))
			replication.OwnershipViolation(context.Background(), router, server.Stats().Tick,
				logging.EntityRef{ID: peer, Kind: logging.EntityKindPeer},
				replication.ViolationPayload{Peer: peer, Objects: objects}, nil)
		},
		Observe: func(d *world.WorldDelta) {
			capt.Observe(d)
		},
	})
	defer server.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(observability.NewRelayCollector(counters, func() netsync.Stats {
		return server.Stats()
	}))

	handler := newHandler(handlerConfig{
		upgrade:  server.HandleUpgrade,
		stats:    server.Stats,
		counters: counters,
		capture:  capt,
		tickRate: cfg.TickRate,
		registry: registry,
		obs:      observability.Config{EnablePprofTrace: cfg.PprofTrace},
	})

	srv := &nethttp.Server{Addr: cfg.Addr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	logger.Printf("relay listening on %s", srv.Addr)

	interval := cfg.tickInterval()
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Printf("http shutdown: %v", serr)
			}
			return nil
		case err := <-serveErr:
			if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ticker.C:
			start := time.Now()
			engine.Gravity = w.Gravity
			engine.Step(dt)
			bridge.Pull(w)
			server.Accept(w)
			server.Receive(w)
			if pruned := w.PruneBrokenJoints(); pruned > 0 {
				counters.RecordPrunedJoints(pruned)
				replication.JointsPruned(context.Background(), router, server.Stats().Tick,
					logging.EntityRef{ID: "relay", Kind: logging.EntityKindWorld},
					replication.PrunePayload{Pruned: pruned}, nil)
			}
			if _, serr := server.Sync(w); serr != nil {
				logger.Printf("sync failed: %v", serr)
			}
			bridge.Push(w)
			counters.RecordTickDuration(time.Since(start))
		}
	}
}

// buildRouter assembles the logging router and its sinks from config.
// The returned cleanup closes files backing sinks; it must run after the
// router itself is closed.
func buildRouter(cfg Config) (*logging.Router, func(), error) {
	logCfg := cfg.loggingConfig()

	var named []logging.NamedSink
	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	if logCfg.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, logCfg.Console),
		})
	}
	if logCfg.HasSink("json") && logCfg.JSON.FilePath != "" {
		file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open json log %s: %w", logCfg.JSON.FilePath, err)
		}
		files = append(files, file)
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, logCfg.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(nil, logCfg, named)
	if err != nil {
		closeFiles()
		return nil, nil, err
	}
	return router, closeFiles, nil
}

// seedScene installs the relay-owned geometry every peer snapshots from:
// a wide fixed ground slab and an updraft field above it.
func seedScene(w *world.World, owned *world.Ownership) {
	ground := w.Bodies.Insert(world.Body{
		Position: world.Vec2{Y: -10},
		Kind:     world.BodyFixed,
		Owner:    owned.Peer,
	})
	owned.Bodies.Add(ground.SyncID)

	slab := w.Shapes.Insert(world.Shape{
		Body:        ground,
		HalfExtents: world.Vec2{X: 50, Y: 1},
		Owner:       owned.Peer,
	})
	owned.Shapes.Add(slab.SyncID)

	w.Fields.Set("updraft", world.ForceField{
		Position: world.Vec2{Y: 5},
		Radius:   4,
		Accel:    world.Vec2{Y: 15},
		Enabled:  true,
	})
}

// auditOwnership flags objects a delta touches that the current state
// records as owned by someone other than the sender. Creations pass:
// an object the relay has never seen has no owner to violate.
func auditOwnership(w *world.World, sender string, d *world.WorldDelta) []uint64 {
	peer := world.PeerID(sender)
	var objects []uint64
	flag := func(id arena.SyncID, owner world.PeerID) {
		if owner != "" && owner != peer {
			objects = append(objects, uint64(id))
		}
	}

	for id := range d.Bodies.Altered {
		h := arena.Remote(id)
		if body, ok := w.Bodies.Get(&h); ok {
			flag(id, body.Owner)
		}
	}
	for _, id := range d.Bodies.Removed {
		h := arena.Remote(id)
		if body, ok := w.Bodies.Get(&h); ok {
			flag(id, body.Owner)
		}
	}
	for id := range d.Shapes.Altered {
		h := arena.Remote(id)
		if shape, ok := w.Shapes.Get(&h); ok {
			flag(id, shape.Owner)
		}
	}
	for _, id := range d.Shapes.Removed {
		h := arena.Remote(id)
		if shape, ok := w.Shapes.Get(&h); ok {
			flag(id, shape.Owner)
		}
	}
	for id := range d.Joints.Altered {
		h := arena.Remote(id)
		if joint, ok := w.Joints.Get(&h); ok {
			flag(id, joint.Owner)
		}
	}
	for _, id := range d.Joints.Removed {
		h := arena.Remote(id)
		if joint, ok := w.Joints.Get(&h); ok {
			flag(id, joint.Owner)
		}
	}
	return objects
}
