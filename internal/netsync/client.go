package netsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"tumble/engine/internal/delta"
	"tumble/engine/internal/telemetry"
	"tumble/engine/internal/wire"
	"tumble/engine/logging"
	"tumble/engine/logging/replication"
)

// ErrDisconnected reports that the relay closed the connection. The
// client is not reusable after any Sync error; reconnect with Dial.
var ErrDisconnected = errors.New("netsync: disconnected from relay")

// ClientConfig wires a client's collaborators. The zero value works the
// same way ServerConfig does.
type ClientConfig[D any] struct {
	MaxFrameBytes int
	Logger        *log.Logger
	Publisher     logging.Publisher
	Counters      *telemetry.Counters

	// Inspect observes every decoded inbound delta before it is
	// applied.
	Inspect func(d *D)

	// Observe sees every outbound delta just before encoding. The
	// capture facility hangs off this.
	Observe func(d *D)
}

// Client is one peer's connection to the relay. Dial performs the
// handshake; Sync runs the per-tick exchange. Methods are not safe for
// concurrent use, the tick goroutine owns the client.
type Client[S any, D delta.Delta, PS delta.Diffable[S, D]] struct {
	peer    *Peer
	limit   int
	inspect func(d *D)
	observe func(d *D)

	logger   *log.Logger
	pub      logging.Publisher
	counters *telemetry.Counters

	previous S
	tick     uint64
}

// Dial connects to the relay and runs the handshake: wait for the
// connection to open, then for exactly one binary frame carrying the
// full compressed state, decoded into state. The context bounds the
// dial and the snapshot wait.
func Dial[S any, D delta.Delta, PS delta.Diffable[S, D]](ctx context.Context, url string, state PS, cfg ClientConfig[D]) (*Client[S, D, PS], error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	counters := cfg.Counters
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	limit := cfg.MaxFrameBytes
	if limit <= 0 {
		limit = wire.DefaultLimit
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("netsync: dial %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	kind, frame, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("netsync: read snapshot: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if kind != websocket.BinaryMessage {
		conn.Close()
		return nil, fmt.Errorf("netsync: snapshot frame was not binary")
	}
	if err := wire.Decode(frame, state, limit); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netsync: decode snapshot: %w", err)
	}
	counters.RecordInbound(len(frame))
	logger.Printf("connected to relay, snapshot %d bytes", len(frame))

	c := &Client[S, D, PS]{
		peer:     newPeer("relay", conn),
		limit:    limit,
		inspect:  cfg.Inspect,
		observe:  cfg.Observe,
		logger:   logger,
		pub:      pub,
		counters: counters,
		previous: state.Clone(),
	}
	go c.peer.run()
	return c, nil
}

// Sync runs one replication tick: send the local diff when state
// changed, drain and apply whatever the relay delivered, then rebase
// the diff baseline onto the current state. Any error means the
// connection is gone.
func (c *Client[S, D, PS]) Sync(state PS) error {
	c.tick++
	d := PS(&c.previous).Diff(state)
	if !d.Empty() {
		if c.observe != nil {
			c.observe(&d)
		}
		frame, err := wire.Encode(&d)
		if err != nil {
			return fmt.Errorf("netsync: encode delta: %w", err)
		}
		if err := c.peer.Send(frame); err != nil {
			return fmt.Errorf("netsync: send delta: %w", err)
		}
		c.counters.RecordOutbound(len(frame))
	}

	for {
		select {
		case frame, ok := <-c.peer.inbound:
			if !ok {
				return ErrDisconnected
			}
			c.counters.RecordInbound(len(frame))
			var rd D
			if err := wire.Decode(frame, &rd, c.limit); err != nil {
				c.counters.RecordMalformed()
				replication.MalformedFrame(context.Background(), c.pub, c.tick, peerRef(c.peer.id),
					replication.FramePayload{Peer: c.peer.id, Bytes: len(frame)}, nil)
				return fmt.Errorf("netsync: decode delta: %w", err)
			}
			if c.inspect != nil {
				c.inspect(&rd)
			}
			state.Apply(&rd)
			c.counters.RecordApply()
		default:
			c.previous = state.Clone()
			return nil
		}
	}
}

// Close sends a normal close frame and tears the connection down.
func (c *Client[S, D, PS]) Close() error {
	return c.peer.closeWith(websocket.CloseNormalClosure, "")
}
