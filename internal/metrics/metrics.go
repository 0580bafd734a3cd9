// Package metrics exposes Prometheus metrics and the health probe server.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart server.
type Metrics struct {
	// History fetch path
	FetchesTotal prometheus.Counter
	FetchErrors  prometheus.Counter
	FetchDur     prometheus.Histogram
	PageCacheHit prometheus.Counter

	// Series store
	PagesMerged       prometheus.Counter
	RealtimeBarsTotal prometheus.Counter
	MalformedBars     prometheus.Counter

	// Indicator pipeline
	IndicatorBatches    prometheus.Counter
	IndicatorComputeDur prometheus.Histogram
	StaleBatchesDropped prometheus.Counter

	// Gateway
	WSClients     prometheus.Gauge
	DrawingOps    *prometheus.CounterVec // label: op
	FeedReconnect prometheus.Counter
}

// New registers and returns all metrics.
func New() *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_history_fetches_total",
			Help: "Historical bar pages requested from the upstream API",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_history_fetch_errors_total",
			Help: "Failed historical bar fetches",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartserver_history_fetch_duration_seconds",
			Help:    "Historical bar fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		PageCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_page_cache_hits_total",
			Help: "Bar pages served from the SQLite cache",
		}),
		PagesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_pages_merged_total",
			Help: "Older pages merged into live series",
		}),
		RealtimeBarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_realtime_bars_total",
			Help: "Realtime bar updates applied",
		}),
		MalformedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_malformed_bars_total",
			Help: "Bars rejected for missing or invalid fields",
		}),
		IndicatorBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_indicator_batches_total",
			Help: "Indicator batches computed",
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartserver_indicator_compute_duration_seconds",
			Help:    "Indicator batch compute latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		StaleBatchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_stale_batches_dropped_total",
			Help: "Indicator batches discarded because a newer request superseded them",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartserver_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		DrawingOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartserver_drawing_ops_total",
			Help: "Drawing mutations by operation",
		}, []string{"op"}),
		FeedReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartserver_feed_reconnects_total",
			Help: "Realtime feed reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.FetchesTotal,
		m.FetchErrors,
		m.FetchDur,
		m.PageCacheHit,
		m.PagesMerged,
		m.RealtimeBarsTotal,
		m.MalformedBars,
		m.IndicatorBatches,
		m.IndicatorComputeDur,
		m.StaleBatchesDropped,
		m.WSClients,
		m.DrawingOps,
		m.FeedReconnect,
	)
	return m
}

// HealthStatus tracks dependency health for the probe endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the liveness endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":            status,
		"uptime":            time.Since(h.StartedAt).Round(time.Second).String(),
		"feed_connected":    h.FeedConnected,
		"last_bar_time":     h.LastBarTime.Format(time.RFC3339),
		"bar_age":           barAge,
		"redis_connected":   h.RedisConnected,
		"redis_latency_ms":  h.RedisLatencyMs,
		"sqlite_ok":         h.SQLiteOK,
		"sqlite_latency_ms": h.SQLiteLatencyMs,
		"last_check_at":     h.LastCheckAt.Format(time.RFC3339),
	})
}

// Server exposes /metrics and /livez on a side port.
type Server struct {
	addr string
	srv  *http.Server
}

func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
