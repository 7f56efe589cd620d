package app

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tumble/engine/internal/capture"
	"tumble/engine/internal/netsync"
	"tumble/engine/internal/observability"
	"tumble/engine/internal/telemetry"
)

type handlerConfig struct {
	upgrade  nethttp.HandlerFunc
	stats    func() netsync.Stats
	counters *telemetry.Counters
	capture  *capture.Capture
	tickRate int
	registry *prometheus.Registry
	obs      observability.Config
}

func newHandler(cfg handlerConfig) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/ws", cfg.upgrade)

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		stats := cfg.stats()
		payload := struct {
			Status     string             `json:"status"`
			ServerTime int64              `json:"serverTime"`
			Peers      int                `json:"peers"`
			Tick       uint64             `json:"tick"`
			TickRate   int                `json:"tickRate"`
			Telemetry  telemetry.Snapshot `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Peers:      stats.Peers,
			Tick:       stats.Tick,
			TickRate:   cfg.tickRate,
			Telemetry:  cfg.counters.Snapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(cfg.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/debug/capture", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		cfg.capture.Arm()
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("armed"))
	})

	if cfg.obs.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
