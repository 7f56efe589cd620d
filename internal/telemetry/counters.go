package telemetry

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Counters aggregates replication traffic and tick statistics. All fields
// are atomics so transport goroutines and the diagnostics endpoint can
// touch them without coordination.
type Counters struct {
	framesIn            atomic.Uint64
	framesOut           atomic.Uint64
	bytesIn             atomic.Uint64
	bytesOut            atomic.Uint64
	snapshotsSent       atomic.Uint64
	deltasRelayed       atomic.Uint64
	deltasApplied       atomic.Uint64
	peersAdmitted       atomic.Uint64
	peersEvicted        atomic.Uint64
	malformedFrames     atomic.Uint64
	ownershipViolations atomic.Uint64
	jointsPruned        atomic.Uint64
	tickDurationMillis  atomic.Int64
	lastFrameBytes      atomic.Uint64
	debug               bool
}

// Snapshot is the JSON shape served by the diagnostics endpoint.
type Snapshot struct {
	FramesIn            uint64 `json:"framesIn"`
	FramesOut           uint64 `json:"framesOut"`
	BytesIn             uint64 `json:"bytesIn"`
	BytesOut            uint64 `json:"bytesOut"`
	SnapshotsSent       uint64 `json:"snapshotsSent"`
	DeltasRelayed       uint64 `json:"deltasRelayed"`
	DeltasApplied       uint64 `json:"deltasApplied"`
	PeersAdmitted       uint64 `json:"peersAdmitted"`
	PeersEvicted        uint64 `json:"peersEvicted"`
	MalformedFrames     uint64 `json:"malformedFrames"`
	OwnershipViolations uint64 `json:"ownershipViolations"`
	JointsPruned        uint64 `json:"jointsPruned"`
	TickDuration        int64  `json:"tickDurationMillis"`
	LastFrameBytes      uint64 `json:"lastFrameBytes"`
}

// NewCounters returns zeroed counters. Setting DEBUG_TELEMETRY=1 makes
// RecordTickDuration print a one-line summary per tick.
func NewCounters() *Counters {
	c := &Counters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		c.debug = true
	}
	return c
}

func (c *Counters) RecordInbound(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	c.framesIn.Add(1)
	c.bytesIn.Add(uint64(bytes))
}

func (c *Counters) RecordOutbound(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	c.framesOut.Add(1)
	c.bytesOut.Add(uint64(bytes))
	c.lastFrameBytes.Store(uint64(bytes))
}

func (c *Counters) RecordSnapshot(bytes int) {
	c.snapshotsSent.Add(1)
	c.RecordOutbound(bytes)
}

func (c *Counters) RecordRelay(bytes int) {
	c.deltasRelayed.Add(1)
	c.RecordOutbound(bytes)
}

func (c *Counters) RecordApply() {
	c.deltasApplied.Add(1)
}

func (c *Counters) RecordAdmission() {
	c.peersAdmitted.Add(1)
}

func (c *Counters) RecordEviction() {
	c.peersEvicted.Add(1)
}

func (c *Counters) RecordMalformed() {
	c.malformedFrames.Add(1)
}

func (c *Counters) RecordViolations(n int) {
	if n <= 0 {
		return
	}
	c.ownershipViolations.Add(uint64(n))
}

func (c *Counters) RecordPrunedJoints(n int) {
	if n <= 0 {
		return
	}
	c.jointsPruned.Add(uint64(n))
}

func (c *Counters) RecordTickDuration(duration time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	c.tickDurationMillis.Store(millis)
	if c.debug {
		fmt.Printf(
			"[telemetry] tick=%dms in=%d/%dB out=%d/%dB relayed=%d applied=%d\n",
			millis,
			c.framesIn.Load(),
			c.bytesIn.Load(),
			c.framesOut.Load(),
			c.bytesOut.Load(),
			c.deltasRelayed.Load(),
			c.deltasApplied.Load(),
		)
	}
}

// DebugEnabled reports whether per-tick debug printing is on.
func (c *Counters) DebugEnabled() bool {
	return c.debug
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FramesIn:            c.framesIn.Load(),
		FramesOut:           c.framesOut.Load(),
		BytesIn:             c.bytesIn.Load(),
		BytesOut:            c.bytesOut.Load(),
		SnapshotsSent:       c.snapshotsSent.Load(),
		DeltasRelayed:       c.deltasRelayed.Load(),
		DeltasApplied:       c.deltasApplied.Load(),
		PeersAdmitted:       c.peersAdmitted.Load(),
		PeersEvicted:        c.peersEvicted.Load(),
		MalformedFrames:     c.malformedFrames.Load(),
		OwnershipViolations: c.ownershipViolations.Load(),
		JointsPruned:        c.jointsPruned.Load(),
		TickDuration:        c.tickDurationMillis.Load(),
		LastFrameBytes:      c.lastFrameBytes.Load(),
	}
}
