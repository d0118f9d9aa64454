// Package prom exports relay metrics to Prometheus.
package prom

import (
	"net/http"

	"github.com/clipsync/clipsync/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RelayObserver exports relay metrics to Prometheus.
type RelayObserver struct {
	connGauge      prometheus.Gauge
	sessionGauge   prometheus.Gauge
	pairsMinted    prometheus.Counter
	connectTotal   *prometheus.CounterVec
	replaceTotal   prometheus.Counter
	clipboardTotal prometheus.Counter
	fileTotal      *prometheus.CounterVec
	chunksRelayed  prometheus.Counter
	chunkBytes     prometheus.Counter
	chunkRetries   prometheus.Counter
	reapTotal      *prometheus.CounterVec
}

// NewRelayObserver registers relay metrics on the registry.
func NewRelayObserver(reg *prometheus.Registry) *RelayObserver {
	o := &RelayObserver{
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clipsync_relay_connections",
			Help: "Current websocket connection count.",
		}),
		sessionGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clipsync_relay_sessions",
			Help: "Current live session count.",
		}),
		pairsMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_pairs_minted_total",
			Help: "Pair credentials minted.",
		}),
		connectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipsync_relay_connect_total",
			Help: "Upgrade attempts by result and reason.",
		}, []string{"result", "reason"}),
		replaceTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_replace_total",
			Help: "Connections displaced by a rebind of the same role.",
		}),
		clipboardTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_clipboard_total",
			Help: "Clipboard frames relayed.",
		}),
		fileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipsync_relay_file_events_total",
			Help: "File transfer lifecycle events.",
		}, []string{"event"}),
		chunksRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_chunks_total",
			Help: "File chunks forwarded to receivers.",
		}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_chunk_bytes_total",
			Help: "Encoded bytes of forwarded file chunks.",
		}),
		chunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_chunk_retries_total",
			Help: "Chunk forward attempts that needed a retry.",
		}),
		reapTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipsync_relay_reap_total",
			Help: "Sessions and file records reaped, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		o.connGauge,
		o.sessionGauge,
		o.pairsMinted,
		o.connectTotal,
		o.replaceTotal,
		o.clipboardTotal,
		o.fileTotal,
		o.chunksRelayed,
		o.chunkBytes,
		o.chunkRetries,
		o.reapTotal,
	)
	return o
}

func (o *RelayObserver) ConnCount(n int64) {
	o.connGauge.Set(float64(n))
}

func (o *RelayObserver) SessionCount(n int) {
	o.sessionGauge.Set(float64(n))
}

func (o *RelayObserver) PairMinted() {
	o.pairsMinted.Inc()
}

func (o *RelayObserver) Connect(result observability.ConnectResult, reason observability.ConnectReason) {
	o.connectTotal.WithLabelValues(string(result), string(reason)).Inc()
}

func (o *RelayObserver) Replace() {
	o.replaceTotal.Inc()
}

func (o *RelayObserver) ClipboardRelayed() {
	o.clipboardTotal.Inc()
}

func (o *RelayObserver) File(event observability.FileEvent) {
	o.fileTotal.WithLabelValues(string(event)).Inc()
}

func (o *RelayObserver) ChunkRelayed(bytes int) {
	o.chunksRelayed.Inc()
	o.chunkBytes.Add(float64(bytes))
}

func (o *RelayObserver) ChunkRetry() {
	o.chunkRetries.Inc()
}

func (o *RelayObserver) Reap(reason observability.ReapReason) {
	o.reapTotal.WithLabelValues(string(reason)).Inc()
}
