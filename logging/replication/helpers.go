package replication

import (
	"context"

	"tumble/engine/logging"
)

const (
	// EventPeerConnected is emitted when a peer completes the websocket handshake.
	EventPeerConnected logging.EventType = "replication.peer_connected"
	// EventPeerDisconnected is emitted when a peer leaves or is evicted.
	EventPeerDisconnected logging.EventType = "replication.peer_disconnected"
	// EventSnapshotSent is emitted when a full state snapshot is written to a peer.
	EventSnapshotSent logging.EventType = "replication.snapshot_sent"
	// EventDeltaRelayed is emitted when a peer delta is forwarded to the other peers.
	EventDeltaRelayed logging.EventType = "replication.delta_relayed"
	// EventDeltaApplied is emitted when a remote delta lands in the local state.
	EventDeltaApplied logging.EventType = "replication.delta_applied"
	// EventMalformedFrame is emitted when a peer sends a frame that fails to decode.
	EventMalformedFrame logging.EventType = "replication.malformed_frame"
	// EventOwnershipViolation is emitted when a delta touches objects outside the sender's set.
	EventOwnershipViolation logging.EventType = "replication.ownership_violation"
	// EventJointsPruned is emitted when maintenance drops joints with missing bodies.
	EventJointsPruned logging.EventType = "replication.joints_pruned"
)

// PeerPayload describes a peer membership change.
type PeerPayload struct {
	Peer   string `json:"peer"`
	Peers  int    `json:"peers"`
	Reason string `json:"reason,omitempty"`
}

// FramePayload captures the size of an encoded frame.
type FramePayload struct {
	Peer  string `json:"peer"`
	Bytes int    `json:"bytes"`
}

// ViolationPayload identifies objects a peer altered without owning them.
type ViolationPayload struct {
	Peer    string   `json:"peer"`
	Objects []uint64 `json:"objects"`
}

// PrunePayload records a joint maintenance sweep.
type PrunePayload struct {
	Pruned int `json:"pruned"`
}

// PeerConnected publishes an info event when a peer joins the session.
func PeerConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PeerDisconnected publishes an info event when a peer leaves the session.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SnapshotSent publishes a debug event when a peer receives its bootstrap snapshot.
func SnapshotSent(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FramePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSnapshotSent,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// DeltaRelayed publishes a debug event when a peer delta is forwarded.
func DeltaRelayed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FramePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDeltaRelayed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// DeltaApplied publishes a debug event when a remote delta is applied locally.
func DeltaApplied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FramePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDeltaApplied,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// MalformedFrame publishes a warning event before the offending peer is dropped.
func MalformedFrame(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FramePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventMalformedFrame,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryTransport,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// OwnershipViolation publishes a warning event naming the objects a peer altered without owning them.
func OwnershipViolation(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ViolationPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventOwnershipViolation,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// JointsPruned publishes a debug event after a maintenance sweep drops broken joints.
func JointsPruned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PrunePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventJointsPruned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
