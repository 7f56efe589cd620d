// Package netsync moves state deltas between peers over websockets. The
// relay server seeds every new peer with a full snapshot, forwards peer
// deltas verbatim to everyone else, folds them into its own copy, and
// broadcasts its own mutations. The client mirrors the handshake and
// runs the same diff-send-drain-rebase cycle once per tick.
//
// The package is generic over the replicated state: any type satisfying
// the diff contract syncs, the relay never looks inside a delta beyond
// decoding it.
//
// All state access happens on the goroutine driving the tick methods.
// Read pumps are I/O adapters only; they never touch state.
package netsync

import (
	"context"
	"fmt"
	"log"
	nethttp "net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"tumble/engine/internal/delta"
	"tumble/engine/internal/telemetry"
	"tumble/engine/internal/wire"
	"tumble/engine/logging"
	"tumble/engine/logging/replication"
)

// incomingDepth bounds connections upgraded but not yet admitted. The
// handler refuses beyond this rather than queueing unboundedly.
const incomingDepth = 16

// ServerConfig wires the relay's collaborators. The zero value works:
// frames cap at wire.DefaultLimit, logs go to log.Default, events go
// nowhere.
type ServerConfig[D any] struct {
	// MaxFrameBytes caps the uncompressed size of inbound frames.
	MaxFrameBytes int
	Logger        *log.Logger
	Publisher     logging.Publisher
	Counters      *telemetry.Counters

	// Inspect observes every decoded peer delta before it is relayed
	// and applied. Auditing only; it cannot veto.
	Inspect func(peer string, d *D)

	// Observe sees every outbound broadcast delta before encoding. The
	// capture facility hangs off this.
	Observe func(d *D)
}

// Stats is a point-in-time view of the relay, safe to read from any
// goroutine.
type Stats struct {
	Peers int    `json:"peers"`
	Tick  uint64 `json:"tick"`
}

// Server is the authoritative relay. HandleUpgrade runs on HTTP handler
// goroutines and only parks new connections; Accept, Receive, Sync and
// Close belong to the tick goroutine, which owns the peer set and the
// state.
type Server[S any, D delta.Delta, PS delta.Diffable[S, D]] struct {
	upgrader websocket.Upgrader
	limit    int
	inspect  func(peer string, d *D)
	observe  func(d *D)

	logger   *log.Logger
	pub      logging.Publisher
	counters *telemetry.Counters

	incoming  chan *Peer
	nextGuest atomic.Uint64

	peers    []*Peer
	previous S
	seeded   bool

	tick atomic.Uint64
	live atomic.Int32
}

// NewServer constructs a relay for one replicated state type.
func NewServer[S any, D delta.Delta, PS delta.Diffable[S, D]](cfg ServerConfig[D]) *Server[S, D, PS] {
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

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Server[S, D, PS]{
		upgrader: upgrader,
		limit:    limit,
		inspect:  cfg.Inspect,
		observe:  cfg.Observe,
		logger:   logger,
		pub:      pub,
		counters: counters,
		incoming: make(chan *Peer, incomingDepth),
	}
}

// HandleUpgrade is the websocket endpoint. It upgrades the connection
// and parks it for the tick loop; the snapshot is sent from Accept so
// every admission sees a settled state. Peers may name themselves with
// ?id=, anonymous connections get a generated one.
func (s *Server[S, D, PS]) HandleUpgrade(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		id = fmt.Sprintf("peer-%d", s.nextGuest.Add(1))
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade failed for %s: %v", id, err)
		return
	}

	select {
	case s.incoming <- newPeer(id, conn):
	default:
		message := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "admission queue full")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
	}
}

// Accept drains the admission queue. Each new peer receives one binary
// frame holding the full current state, then its read pump starts and
// it joins the broadcast set. An empty queue means no new peer this
// tick. Returns the ids admitted.
func (s *Server[S, D, PS]) Accept(state PS) []string {
	var admitted []string
	var snapshot []byte
	for {
		select {
		case peer := <-s.incoming:
			if snapshot == nil {
				frame, err := wire.Encode(state)
				if err != nil {
					s.logger.Printf("snapshot encode failed: %v", err)
					peer.Close()
					continue
				}
				snapshot = frame
			}
			if err := peer.Send(snapshot); err != nil {
				s.logger.Printf("snapshot send to %s failed: %v", peer.id, err)
				peer.Close()
				continue
			}
			go peer.run()
			s.peers = append(s.peers, peer)
			s.live.Store(int32(len(s.peers)))
			admitted = append(admitted, peer.id)

			s.counters.RecordAdmission()
			s.counters.RecordSnapshot(len(snapshot))
			s.logger.Printf("peer %s connected", peer.id)
			tick := s.tick.Load()
			replication.PeerConnected(context.Background(), s.pub, tick, peerRef(peer.id),
				replication.PeerPayload{Peer: peer.id, Peers: len(s.peers)}, nil)
			replication.SnapshotSent(context.Background(), s.pub, tick, peerRef(peer.id),
				replication.FramePayload{Peer: peer.id, Bytes: len(snapshot)}, nil)
		default:
			return admitted
		}
	}
}

// Receive drains every peer's inbound queue. Frames decode before they
// travel: a malformed frame drops its sender and is never forwarded.
// Well-formed deltas are relayed verbatim to the other peers, then
// applied to both the authoritative state and the broadcast baseline,
// so Sync never echoes them back. Returns the number of deltas applied.
func (s *Server[S, D, PS]) Receive(state PS) int {
	s.seed(state)
	applied := 0
	tick := s.tick.Load()
	for _, p := range s.peers {
		if p.dead {
			continue
		}
	drain:
		for {
			select {
			case frame, ok := <-p.inbound:
				if !ok {
					p.dead = true
					s.logger.Printf("peer %s disconnected", p.id)
					break drain
				}
				s.counters.RecordInbound(len(frame))

				var d D
				if err := wire.Decode(frame, &d, s.limit); err != nil {
					s.counters.RecordMalformed()
					s.logger.Printf("dropping peer %s: %v", p.id, err)
					replication.MalformedFrame(context.Background(), s.pub, tick, peerRef(p.id),
						replication.FramePayload{Peer: p.id, Bytes: len(frame)}, nil)
					p.closeWith(websocket.ClosePolicyViolation, "malformed frame")
					p.dead = true
					break drain
				}
				if s.inspect != nil {
					s.inspect(p.id, &d)
				}

				for _, q := range s.peers {
					if q == p || q.dead {
						continue
					}
					if err := q.Send(frame); err != nil {
						s.logger.Printf("relay to %s failed: %v", q.id, err)
						q.dead = true
						continue
					}
					s.counters.RecordRelay(len(frame))
				}
				replication.DeltaRelayed(context.Background(), s.pub, tick, peerRef(p.id),
					replication.FramePayload{Peer: p.id, Bytes: len(frame)}, nil)

				state.Apply(&d)
				PS(&s.previous).Apply(&d)
				applied++
				s.counters.RecordApply()
				replication.DeltaApplied(context.Background(), s.pub, tick, peerRef(p.id),
					replication.FramePayload{Peer: p.id, Bytes: len(frame)}, nil)
			default:
				break drain
			}
		}
	}
	s.sweep()
	return applied
}

// Sync broadcasts the server's own mutations: everything that changed
// in state since the last broadcast and did not arrive from a peer.
// Advances the tick. Returns the number of peers written.
func (s *Server[S, D, PS]) Sync(state PS) (int, error) {
	s.seed(state)
	defer s.tick.Add(1)

	d := PS(&s.previous).Diff(state)
	if d.Empty() {
		return 0, nil
	}
	if s.observe != nil {
		s.observe(&d)
	}
	frame, err := wire.Encode(&d)
	if err != nil {
		return 0, fmt.Errorf("netsync: encode delta: %w", err)
	}

	sent := 0
	for _, p := range s.peers {
		if p.dead {
			continue
		}
		if err := p.Send(frame); err != nil {
			s.logger.Printf("send to %s failed: %v", p.id, err)
			p.dead = true
			continue
		}
		s.counters.RecordOutbound(len(frame))
		sent++
	}
	s.previous = state.Clone()
	s.sweep()
	return sent, nil
}

// Peers lists the ids currently in the broadcast set. Tick goroutine
// only.
func (s *Server[S, D, PS]) Peers() []string {
	ids := make([]string, 0, len(s.peers))
	for _, p := range s.peers {
		if !p.dead {
			ids = append(ids, p.id)
		}
	}
	return ids
}

// Stats reports peer count and tick for diagnostics endpoints.
func (s *Server[S, D, PS]) Stats() Stats {
	return Stats{Peers: int(s.live.Load()), Tick: s.tick.Load()}
}

// Close tears down every connection, parked or admitted.
func (s *Server[S, D, PS]) Close() {
	for drained := false; !drained; {
		select {
		case peer := <-s.incoming:
			peer.Close()
		default:
			drained = true
		}
	}
	for _, p := range s.peers {
		p.Close()
	}
	s.peers = nil
	s.live.Store(0)
}

// seed pins the broadcast baseline to the current state the first time
// any tick method runs, so changes made before the transport came up
// travel only through snapshots.
func (s *Server[S, D, PS]) seed(state PS) {
	if !s.seeded {
		s.previous = state.Clone()
		s.seeded = true
	}
}

// sweep compacts the broadcast set, closing peers marked dead this
// tick.
func (s *Server[S, D, PS]) sweep() {
	live := s.peers[:0]
	var dead []*Peer
	for _, p := range s.peers {
		if p.dead {
			dead = append(dead, p)
		} else {
			live = append(live, p)
		}
	}
	if len(dead) == 0 {
		return
	}
	s.peers = live
	s.live.Store(int32(len(live)))
	tick := s.tick.Load()
	for _, p := range dead {
		p.Close()
		s.counters.RecordEviction()
		replication.PeerDisconnected(context.Background(), s.pub, tick, peerRef(p.id),
			replication.PeerPayload{Peer: p.id, Peers: len(live), Reason: "connection lost"}, nil)
	}
}

func peerRef(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindPeer}
}
