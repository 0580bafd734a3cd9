// cmd/chartserver — the chart backend.
//
// Serves browser clients over WebSocket (/ws): each connection owns a chart
// session whose pointer, tool, view and indicator events drive the drawing
// state machine and indicator pipeline server-side. Historical bars come
// from the upstream market-data API through a SQLite page cache; realtime
// bars arrive over Redis PubSub and fan out to every watcher of a
// (ticker, interval). Prometheus metrics and dependency liveness are
// exposed on a side port.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/config"
	"chartengine/internal/drawing"
	"chartengine/internal/feed"
	"chartengine/internal/gateway"
	"chartengine/internal/history"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/series"
	"chartengine/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("chartserver", slog.LevelInfo)
	slogger.Info("starting")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: drawings + bar page cache ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[chartserver] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.CheckSQLite(ctx, store.DB())

	// ---- Upstream history client ----
	var upstream series.Fetcher
	var symbols gateway.SymbolSearcher
	if cfg.Offline {
		log.Println("[chartserver] *** OFFLINE MODE — serving cached pages only ***")
		upstream = offlineFetcher{}
	} else {
		client := history.NewClient(history.Config{
			BaseURL:    cfg.UpstreamBaseURL,
			ClientCode: cfg.UpstreamClientCode,
			Password:   cfg.UpstreamPassword,
			TOTPSecret: cfg.UpstreamTOTPSecret,
			PageSize:   cfg.PageSize,
		})
		upstream = client
		symbols = client
	}
	fetcher := &gateway.CachedFetcher{
		Upstream: upstream,
		Cache:    store,
		FreshFor: cfg.PageCacheTTL,
		Metrics:  prom,
	}

	// ---- Realtime bar feed (Redis) ----
	var barFeed gateway.BarFeed
	var redisClient *goredis.Client
	f, err := feed.New(feed.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Printf("[chartserver] WARNING: redis init failed: %v (continuing without realtime feed)", err)
		health.SetFeedConnected(false)
	} else {
		f.OnReconnect = prom.FeedReconnect.Inc
		barFeed = f
		redisClient = f.Client()
		health.SetFeedConnected(true)
		defer f.Close()
	}

	health.StartLivenessChecker(ctx, redisClient, store.DB(), 10*time.Second)

	// ---- Indicator presets ----
	var presets *config.Presets
	if cfg.PresetFile != "" {
		presets, err = config.LoadPresets(cfg.PresetFile)
		if err != nil {
			log.Fatalf("[chartserver] presets: %v", err)
		}
		log.Printf("[chartserver] indicator presets loaded from %s", cfg.PresetFile)
	}

	// ---- Gateway ----
	hub := gateway.NewHub(ctx, fetcher, barFeed, store, drawing.StandardDefaults())
	hub.Symbols = symbols
	hub.Metrics = prom
	hub.OnBar = func(upd model.BarUpdate) {
		health.SetLastBarTime(time.Unix(upd.Bar.Time, 0))
	}
	if presets != nil {
		hub.Presets = presets.For
	}

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, time.Now())

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[chartserver] listening on %s (ws://%s/ws)", cfg.ListenAddr, cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[chartserver] server error: %v", err)
		}
	}()

	// ---- Wait for shutdown signal ----
	<-sigCh
	slogger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	slogger.Info("shutdown complete")
}

// offlineFetcher fails every upstream request; with the page cache in front
// of it, previously fetched history still loads.
type offlineFetcher struct{}

func (offlineFetcher) FetchBars(ctx context.Context, ticker, interval string, before int64) (series.Page, error) {
	return series.Page{}, errOffline
}

var errOffline = offlineError{}

type offlineError struct{}

func (offlineError) Error() string { return "upstream disabled in offline mode" }
