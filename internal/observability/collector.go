// Package observability exports the relay's runtime statistics to
// Prometheus and carries the opt-in diagnostics toggles.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"tumble/engine/internal/netsync"
	"tumble/engine/internal/telemetry"
)

// RelayCollector adapts the replication counters and the relay's peer
// stats to the Prometheus collector interface. Collect reads atomic
// snapshots, so scrapes never touch the tick goroutine.
type RelayCollector struct {
	counters *telemetry.Counters
	stats    func() netsync.Stats

	framesIn            *prometheus.Desc
	framesOut           *prometheus.Desc
	bytesIn             *prometheus.Desc
	bytesOut            *prometheus.Desc
	snapshotsSent       *prometheus.Desc
	deltasRelayed       *prometheus.Desc
	deltasApplied       *prometheus.Desc
	peersAdmitted       *prometheus.Desc
	peersEvicted        *prometheus.Desc
	malformedFrames     *prometheus.Desc
	ownershipViolations *prometheus.Desc
	jointsPruned        *prometheus.Desc
	tickDuration        *prometheus.Desc
	lastFrameBytes      *prometheus.Desc

	peers *prometheus.Desc
	tick  *prometheus.Desc
}

// NewRelayCollector builds a collector over the given counters. The
// stats callback may be nil when no relay is running in this process.
func NewRelayCollector(counters *telemetry.Counters, stats func() netsync.Stats) *RelayCollector {
	return &RelayCollector{
		counters: counters,
		stats:    stats,

		framesIn: prometheus.NewDesc(
			"relay_frames_in_total",
			"Total frames received from peers",
			nil, nil,
		),
		framesOut: prometheus.NewDesc(
			"relay_frames_out_total",
			"Total frames written to peers",
			nil, nil,
		),
		bytesIn: prometheus.NewDesc(
			"relay_bytes_in_total",
			"Total payload bytes received from peers",
			nil, nil,
		),
		bytesOut: prometheus.NewDesc(
			"relay_bytes_out_total",
			"Total payload bytes written to peers",
			nil, nil,
		),
		snapshotsSent: prometheus.NewDesc(
			"relay_snapshots_sent_total",
			"Total full state snapshots sent to new peers",
			nil, nil,
		),
		deltasRelayed: prometheus.NewDesc(
			"relay_deltas_relayed_total",
			"Total peer deltas forwarded to other peers",
			nil, nil,
		),
		deltasApplied: prometheus.NewDesc(
			"relay_deltas_applied_total",
			"Total remote deltas applied to local state",
			nil, nil,
		),
		peersAdmitted: prometheus.NewDesc(
			"relay_peers_admitted_total",
			"Total peers admitted to the broadcast set",
			nil, nil,
		),
		peersEvicted: prometheus.NewDesc(
			"relay_peers_evicted_total",
			"Total peers removed from the broadcast set",
			nil, nil,
		),
		malformedFrames: prometheus.NewDesc(
			"relay_malformed_frames_total",
			"Total frames that failed to decompress or decode",
			nil, nil,
		),
		ownershipViolations: prometheus.NewDesc(
			"relay_ownership_violations_total",
			"Total delta entries touching objects their sender does not own",
			nil, nil,
		),
		jointsPruned: prometheus.NewDesc(
			"relay_joints_pruned_total",
			"Total joints dropped because an endpoint body vanished",
			nil, nil,
		),
		tickDuration: prometheus.NewDesc(
			"relay_tick_duration_millis",
			"Duration of the most recent tick in milliseconds",
			nil, nil,
		),
		lastFrameBytes: prometheus.NewDesc(
			"relay_last_frame_bytes",
			"Size of the most recent outbound frame in bytes",
			nil, nil,
		),

		peers: prometheus.NewDesc(
			"relay_peers",
			"Number of peers currently in the broadcast set",
			nil, nil,
		),
		tick: prometheus.NewDesc(
			"relay_tick",
			"Ticks completed since the relay started",
			nil, nil,
		),
	}
}

func (rc *RelayCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- rc.framesIn
	ch <- rc.framesOut
	ch <- rc.bytesIn
	ch <- rc.bytesOut
	ch <- rc.snapshotsSent
	ch <- rc.deltasRelayed
	ch <- rc.deltasApplied
	ch <- rc.peersAdmitted
	ch <- rc.peersEvicted
	ch <- rc.malformedFrames
	ch <- rc.ownershipViolations
	ch <- rc.jointsPruned
	ch <- rc.tickDuration
	ch <- rc.lastFrameBytes

	if rc.stats != nil {
		ch <- rc.peers
		ch <- rc.tick
	}
}

func (rc *RelayCollector) Collect(ch chan<- prometheus.Metric) {
	snap := rc.counters.Snapshot()

	ch <- prometheus.MustNewConstMetric(
		rc.framesIn,
		prometheus.CounterValue,
		float64(snap.FramesIn),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.framesOut,
		prometheus.CounterValue,
		float64(snap.FramesOut),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.bytesIn,
		prometheus.CounterValue,
		float64(snap.BytesIn),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.bytesOut,
		prometheus.CounterValue,
		float64(snap.BytesOut),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.snapshotsSent,
		prometheus.CounterValue,
		float64(snap.SnapshotsSent),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.deltasRelayed,
		prometheus.CounterValue,
		float64(snap.DeltasRelayed),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.deltasApplied,
		prometheus.CounterValue,
		float64(snap.DeltasApplied),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.peersAdmitted,
		prometheus.CounterValue,
		float64(snap.PeersAdmitted),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.peersEvicted,
		prometheus.CounterValue,
		float64(snap.PeersEvicted),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.malformedFrames,
		prometheus.CounterValue,
		float64(snap.MalformedFrames),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.ownershipViolations,
		prometheus.CounterValue,
		float64(snap.OwnershipViolations),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.jointsPruned,
		prometheus.CounterValue,
		float64(snap.JointsPruned),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.tickDuration,
		prometheus.GaugeValue,
		float64(snap.TickDuration),
	)
	ch <- prometheus.MustNewConstMetric(
		rc.lastFrameBytes,
		prometheus.GaugeValue,
		float64(snap.LastFrameBytes),
	)

	if rc.stats != nil {
		stats := rc.stats()
		ch <- prometheus.MustNewConstMetric(
			rc.peers,
			prometheus.GaugeValue,
			float64(stats.Peers),
		)
		ch <- prometheus.MustNewConstMetric(
			rc.tick,
			prometheus.CounterValue,
			float64(stats.Tick),
		)
	}
}
