package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lodestar",
			Subsystem: "login",
			Name:      "handshakes_total",
			Help:      "Handshakes by outcome.",
		},
		[]string{"transport", "outcome"},
	)
	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lodestar",
			Subsystem: "login",
			Name:      "admissions_total",
			Help:      "Login return codes sent to clients.",
		},
		[]string{"code"},
	)
	admissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lodestar",
			Subsystem: "login",
			Name:      "admission_duration_seconds",
			Help:      "Time spent admitting a session, including the save load.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	playersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestar",
			Subsystem: "world",
			Name:      "players_online",
			Help:      "Occupied registry slots.",
		},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lodestar",
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Game frames by direction.",
		},
		[]string{"direction"},
	)
	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lodestar",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open client connections.",
		},
		[]string{"transport"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(handshakes, admissions, admissionDuration, playersOnline, frames, connections)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordHandshake(transport, outcome string) {
	RegisterMetrics()
	handshakes.WithLabelValues(transport, outcome).Inc()
}

func RecordAdmission(code string, duration time.Duration) {
	RegisterMetrics()
	admissions.WithLabelValues(code).Inc()
	admissionDuration.Observe(duration.Seconds())
}

func SetPlayersOnline(n int) {
	RegisterMetrics()
	playersOnline.Set(float64(n))
}

func RecordFrame(direction string) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Inc()
}

// TrackConnection counts an open connection until the returned func runs.
func TrackConnection(transport string) func() {
	RegisterMetrics()
	g := connections.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}
