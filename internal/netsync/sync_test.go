package netsync

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tumble/engine/internal/arena"
	"tumble/engine/internal/world"
)

// relayHarness runs a relay server on a background tick loop so client
// handshakes and syncs in the test body see a live counterpart. All
// access to the relay's state goes through locked.
type relayHarness struct {
	t       *testing.T
	srv     *Server[world.World, world.WorldDelta, *world.World]
	state   *world.World
	httpSrv *httptest.Server

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()

	h := &relayHarness{
		t:       t,
		state:   world.New(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	h.srv = NewServer[world.World, world.WorldDelta, *world.World](ServerConfig[world.WorldDelta]{
		Logger: log.New(io.Discard, "", 0),
	})
	h.httpSrv = httptest.NewServer(http.HandlerFunc(h.srv.HandleUpgrade))
	t.Cleanup(h.httpSrv.Close)
	t.Cleanup(h.srv.Close)
	t.Cleanup(h.shutdown)

	go h.run()
	return h
}

func (h *relayHarness) run() {
	defer close(h.stopped)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			h.srv.Accept(h.state)
			h.srv.Receive(h.state)
			_, err := h.srv.Sync(h.state)
			h.mu.Unlock()
			if err != nil {
				h.t.Errorf("relay sync failed: %v", err)
				return
			}
		}
	}
}

func (h *relayHarness) shutdown() {
	h.once.Do(func() {
		close(h.stop)
		<-h.stopped
	})
}

func (h *relayHarness) locked(fn func(w *world.World)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.state)
}

func (h *relayHarness) url(id string) string {
	h.t.Helper()

	parsed, err := url.Parse(h.httpSrv.URL)
	if err != nil {
		h.t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	if id != "" {
		query := parsed.Query()
		query.Set("id", id)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func dialClient(t *testing.T, h *relayHarness, id string, cfg ClientConfig[world.WorldDelta]) (*Client[world.World, world.WorldDelta, *world.World], *world.World) {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	w := &world.World{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial[world.World, world.WorldDelta, *world.World](ctx, h.url(id), w, cfg)
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, w
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClientBootstrapsFromSnapshot(t *testing.T) {
	h := newRelayHarness(t)

	var id arena.SyncID
	h.locked(func(w *world.World) {
		handle := w.Bodies.Insert(world.Body{Position: world.Vec2{X: 3, Y: 4}, Kind: world.BodyFixed})
		id = handle.SyncID
	})

	_, cw := dialClient(t, h, "boot", ClientConfig[world.WorldDelta]{})

	handle := arena.Remote(id)
	body, ok := cw.Bodies.Get(&handle)
	if !ok {
		t.Fatalf("expected snapshot to carry body %s", id)
	}
	if body.Position != (world.Vec2{X: 3, Y: 4}) {
		t.Fatalf("expected snapshot position (3,4), got %+v", body.Position)
	}
	if cw.Gravity != (world.Vec2{Y: -9.81}) {
		t.Fatalf("expected snapshot gravity, got %+v", cw.Gravity)
	}
}

func TestDeltaFlowsBetweenClients(t *testing.T) {
	h := newRelayHarness(t)

	a, aw := dialClient(t, h, "a", ClientConfig[world.WorldDelta]{})
	owned := world.NewOwnership("a")
	aw.SetOwned(owned)

	b, bw := dialClient(t, h, "b", ClientConfig[world.WorldDelta]{})
	bw.SetOwned(world.NewOwnership("b"))

	handle := aw.Bodies.Insert(world.Body{Position: world.Vec2{X: 1, Y: 2}, Owner: "a"})
	owned.Bodies.Add(handle.SyncID)
	if err := a.Sync(aw); err != nil {
		t.Fatalf("sync a: %v", err)
	}

	mirror := arena.Remote(handle.SyncID)
	waitFor(t, func() bool {
		if err := b.Sync(bw); err != nil {
			t.Fatalf("sync b: %v", err)
		}
		_, ok := bw.Bodies.Get(&mirror)
		return ok
	}, "body to reach peer b")

	body, _ := bw.Bodies.Get(&mirror)
	if body.Position != (world.Vec2{X: 1, Y: 2}) {
		t.Fatalf("expected mirrored position (1,2), got %+v", body.Position)
	}

	local, ok := aw.Bodies.Get(&handle)
	if !ok {
		t.Fatalf("lost local body %s", handle.SyncID)
	}
	local.Position = world.Vec2{X: 5, Y: 5}
	if err := a.Sync(aw); err != nil {
		t.Fatalf("sync a: %v", err)
	}

	waitFor(t, func() bool {
		if err := b.Sync(bw); err != nil {
			t.Fatalf("sync b: %v", err)
		}
		body, ok := bw.Bodies.Get(&mirror)
		return ok && body.Position == (world.Vec2{X: 5, Y: 5})
	}, "moved body to reach peer b")
}

func TestRelayFoldsPeerDeltasIntoItsState(t *testing.T) {
	h := newRelayHarness(t)

	a, aw := dialClient(t, h, "a", ClientConfig[world.WorldDelta]{})
	owned := world.NewOwnership("a")
	aw.SetOwned(owned)

	handle := aw.Bodies.Insert(world.Body{Position: world.Vec2{X: 7, Y: 8}})
	owned.Bodies.Add(handle.SyncID)
	if err := a.Sync(aw); err != nil {
		t.Fatalf("sync a: %v", err)
	}

	waitFor(t, func() bool {
		found := false
		h.locked(func(w *world.World) {
			mirror := arena.Remote(handle.SyncID)
			_, found = w.Bodies.Get(&mirror)
		})
		return found
	}, "body to land in relay state")
}

func TestServerMutationsBroadcast(t *testing.T) {
	h := newRelayHarness(t)

	c, cw := dialClient(t, h, "watcher", ClientConfig[world.WorldDelta]{})

	h.locked(func(w *world.World) {
		w.Gravity = world.Vec2{Y: -1.62}
		w.Fields.Set("updraft", world.ForceField{
			Position: world.Vec2{X: 10, Y: 0},
			Radius:   4,
			Accel:    world.Vec2{Y: 20},
			Enabled:  true,
		})
	})

	waitFor(t, func() bool {
		if err := c.Sync(cw); err != nil {
			t.Fatalf("sync: %v", err)
		}
		_, ok := cw.Fields.Get("updraft")
		return ok && cw.Gravity == (world.Vec2{Y: -1.62})
	}, "relay mutations to reach the client")
}

func TestClientNeverSeesItsOwnDelta(t *testing.T) {
	h := newRelayHarness(t)

	echoes := 0
	a, aw := dialClient(t, h, "a", ClientConfig[world.WorldDelta]{
		Inspect: func(d *world.WorldDelta) { echoes++ },
	})
	owned := world.NewOwnership("a")
	aw.SetOwned(owned)

	b, bw := dialClient(t, h, "b", ClientConfig[world.WorldDelta]{})
	bw.SetOwned(world.NewOwnership("b"))

	handle := aw.Bodies.Insert(world.Body{Position: world.Vec2{X: 1, Y: 1}})
	owned.Bodies.Add(handle.SyncID)
	if err := a.Sync(aw); err != nil {
		t.Fatalf("sync a: %v", err)
	}

	mirror := arena.Remote(handle.SyncID)
	waitFor(t, func() bool {
		if err := b.Sync(bw); err != nil {
			t.Fatalf("sync b: %v", err)
		}
		_, ok := bw.Bodies.Get(&mirror)
		return ok
	}, "body to reach peer b")

	// The delta has completed the round trip; give the relay extra ticks
	// to prove nothing comes back to the sender.
	for i := 0; i < 10; i++ {
		if err := a.Sync(aw); err != nil {
			t.Fatalf("sync a: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if echoes != 0 {
		t.Fatalf("expected no frames echoed to the sender, got %d", echoes)
	}
}

func TestBatchedCreationsNeverEchoToSender(t *testing.T) {
	h := newRelayHarness(t)

	echoes := 0
	a, aw := dialClient(t, h, "a", ClientConfig[world.WorldDelta]{
		Inspect: func(d *world.WorldDelta) { echoes++ },
	})
	owned := world.NewOwnership("a")
	aw.SetOwned(owned)

	// Each frame carries several creations at once, so the relay applies a
	// multi-entry delta to its state and to its broadcast baseline. The two
	// applies must land every object in the same slot; repeated batches make
	// a layout mismatch show up as spurious frames to the sender.
	for batch := 0; batch < 5; batch++ {
		var last arena.SyncID
		for i := 0; i < 4; i++ {
			handle := aw.Bodies.Insert(world.Body{
				Position: world.Vec2{X: float64(batch), Y: float64(i)},
				Owner:    "a",
			})
			owned.Bodies.Add(handle.SyncID)
			last = handle.SyncID
		}
		if err := a.Sync(aw); err != nil {
			t.Fatalf("sync a: %v", err)
		}

		mirror := arena.Remote(last)
		waitFor(t, func() bool {
			found := false
			h.locked(func(w *world.World) {
				_, found = w.Bodies.Get(&mirror)
			})
			return found
		}, "batch to land in relay state")
	}

	// Every batch has landed; give the relay extra ticks to prove nothing
	// comes back.
	for i := 0; i < 10; i++ {
		if err := a.Sync(aw); err != nil {
			t.Fatalf("sync a: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if echoes != 0 {
		t.Fatalf("expected no frames back from the relay, got %d", echoes)
	}
}

func TestMalformedFrameDropsSender(t *testing.T) {
	h := newRelayHarness(t)

	conn, resp, err := websocket.DefaultDialer.Dial(h.url("rogue"), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	waitFor(t, func() bool { return h.srv.Stats().Peers == 1 }, "rogue peer admission")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x07, 0, 0, 0, 0}); err != nil {
		t.Fatalf("failed to send garbage frame: %v", err)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	waitFor(t, func() bool { return h.srv.Stats().Peers == 0 }, "rogue peer eviction")
}

func TestTextFrameEndsSession(t *testing.T) {
	h := newRelayHarness(t)

	conn, resp, err := websocket.DefaultDialer.Dial(h.url("chatty"), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	waitFor(t, func() bool { return h.srv.Stats().Peers == 1 }, "peer admission")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("failed to send text frame: %v", err)
	}
	waitFor(t, func() bool { return h.srv.Stats().Peers == 0 }, "peer eviction")
}

func TestStatsTracksPeerChurn(t *testing.T) {
	h := newRelayHarness(t)

	a, _ := dialClient(t, h, "a", ClientConfig[world.WorldDelta]{})
	dialClient(t, h, "b", ClientConfig[world.WorldDelta]{})

	waitFor(t, func() bool { return h.srv.Stats().Peers == 2 }, "both peers admitted")

	if err := a.Close(); err != nil {
		t.Fatalf("close a: %v", err)
	}
	waitFor(t, func() bool { return h.srv.Stats().Peers == 1 }, "closed peer eviction")
}

func TestClientSyncReportsDisconnect(t *testing.T) {
	h := newRelayHarness(t)

	c, cw := dialClient(t, h, "doomed", ClientConfig[world.WorldDelta]{})
	waitFor(t, func() bool { return h.srv.Stats().Peers == 1 }, "peer admission")

	h.shutdown()
	h.srv.Close()

	waitFor(t, func() bool {
		return errors.Is(c.Sync(cw), ErrDisconnected)
	}, "client to notice the disconnect")
}
