package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the room server.
var (
	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blastline_tick_duration_seconds",
		Help:    "Time spent inside one simulation tick",
		Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .0167, .05},
	})

	metricRoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blastline_room_players",
		Help: "Connected players per room",
	}, []string{"room"})

	metricRoomBullets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blastline_room_bullets",
		Help: "In-flight bullets per room",
	}, []string{"room"})

	metricRoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blastline_rooms_active",
		Help: "Number of live rooms",
	})

	metricKillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blastline_kills_total",
		Help: "Kills across all rooms",
	})

	metricWSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blastline_websocket_connections",
		Help: "Open websocket connections",
	})

	metricRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blastline_rejected_total",
		Help: "Rejected connections and messages by reason",
	}, []string{"reason"})
)

// PromMetrics implements game.Metrics on the package-level collectors.
type PromMetrics struct{}

func (PromMetrics) TickDuration(seconds float64) {
	metricTickDuration.Observe(seconds)
}

func (PromMetrics) RoomCounts(roomID string, players, bullets int) {
	metricRoomPlayers.WithLabelValues(roomID).Set(float64(players))
	metricRoomBullets.WithLabelValues(roomID).Set(float64(bullets))
}

func (PromMetrics) KillRecorded() {
	metricKillsTotal.Inc()
}

// RecordRejected counts a rejected connection or message by reason.
func RecordRejected(reason string) {
	metricRejectedTotal.WithLabelValues(reason).Inc()
}

// ForgetRoom drops the per-room gauges after disposal so dead rooms do
// not linger in scrapes.
func ForgetRoom(roomID string) {
	metricRoomPlayers.DeleteLabelValues(roomID)
	metricRoomBullets.DeleteLabelValues(roomID)
}

// StartDebugServer serves pprof and Prometheus metrics on localhost
// only. Never expose this port publicly.
func StartDebugServer(addr string) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("🔍 debug server on http://%s (pprof + metrics, localhost only)", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ debug server: %v", err)
		}
	}()

	return srv
}
