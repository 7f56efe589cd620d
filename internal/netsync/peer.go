package netsync

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// inboundDepth bounds the per-peer frame queue. When it fills, the read
// pump blocks and stops draining the socket, so backpressure reaches
// the sender through TCP instead of growing memory here.
const inboundDepth = 64

// Peer is one live websocket connection. The read pump feeds inbound;
// writers share the connection through mu. The dead flag belongs to the
// goroutine running the sync tick and is never touched elsewhere.
type Peer struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex

	inbound chan []byte
	done    chan struct{}
	once    sync.Once
	err     error

	dead bool
}

func newPeer(id string, conn *websocket.Conn) *Peer {
	return &Peer{
		id:      id,
		conn:    conn,
		inbound: make(chan []byte, inboundDepth),
		done:    make(chan struct{}),
	}
}

// ID returns the peer identifier settled at upgrade time.
func (p *Peer) ID() string { return p.id }

// Send writes one binary frame under the write lock.
func (p *Peer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// run reads frames until the connection dies and hands them to the sync
// tick through inbound. Only run closes inbound, so a closed channel is
// the pump's death signal. Non-binary frames are a protocol violation
// and end the session.
func (p *Peer) run() {
	defer close(p.inbound)
	for {
		kind, frame, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			return
		}
		select {
		case p.inbound <- frame:
		case <-p.done:
			return
		}
	}
}

// Close tears the connection down. Safe to call more than once; later
// calls return the first result.
func (p *Peer) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.err = p.conn.Close()
	})
	return p.err
}

// closeWith sends a close frame with the given code before tearing the
// connection down.
func (p *Peer) closeWith(code int, reason string) error {
	message := websocket.FormatCloseMessage(code, reason)
	p.mu.Lock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	p.conn.WriteMessage(websocket.CloseMessage, message)
	p.mu.Unlock()
	return p.Close()
}
