// Command site runs the scheduler and logic execution pipeline for a
// single site: Registry -> Tickers -> Gate -> Queue -> Worker Pool ->
// Logic Host -> Writer, plus the process surface: /healthz, /metrics,
// /status, /timeline, /stream, and SIGTERM/SIGINT graceful shutdown via
// signal.NotifyContext.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brightloop/sitecore/commandwriter"
	"github.com/brightloop/sitecore/coordination"
	"github.com/brightloop/sitecore/gate"
	"github.com/brightloop/sitecore/incident"
	"github.com/brightloop/sitecore/logic"
	"github.com/brightloop/sitecore/metricstore"
	"github.com/brightloop/sitecore/queue"
	"github.com/brightloop/sitecore/registry"
	"github.com/brightloop/sitecore/resilience"
	"github.com/brightloop/sitecore/runtime"
	"github.com/brightloop/sitecore/settings"
	"github.com/brightloop/sitecore/state"
	"github.com/brightloop/sitecore/streaming"
	"github.com/brightloop/sitecore/ticker"
	"github.com/brightloop/sitecore/timeline"
	"github.com/brightloop/sitecore/uicommands"
	"github.com/brightloop/sitecore/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := runtime.LoadConfig()
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}
	log.Printf("[main] starting site=%d name=%q ha=%v", cfg.SiteID, cfg.SiteName, cfg.HAEnabled)

	reg := buildRegistry(cfg)
	degraded := resilience.NewDegradedMode()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[main] redis ping failed at startup: %v", err)
		degraded.MarkQueueUnavailable()
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[main] parse DATABASE_URL: %v", err)
		}
		pgcfg.MaxConns = 20
		pgcfg.MinConns = 2
		pgcfg.MaxConnLifetime = time.Hour
		pgcfg.HealthCheckPeriod = 30 * time.Second

		pool, err = pgxpool.NewWithConfig(ctx, pgcfg)
		if err != nil {
			log.Fatalf("[main] create postgres pool: %v", err)
		}
		if err := pool.Ping(ctx); err != nil {
			log.Printf("[main] postgres ping failed at startup: %v", err)
			degraded.MarkStoreUnavailable()
		}
		defer pool.Close()
	}

	metrics := metricstore.NewStore(pool)
	uiCommands := uicommands.NewStore(pool)
	writer := commandwriter.NewWriter(pool)
	settingsProvider := settings.NewProvider(reg, nil)
	incidents := incident.NewStore()
	timelineStore := timeline.NewStore()

	stateStore, err := state.NewStore(ctx, rdb, cfg.SiteName)
	if err != nil {
		log.Fatalf("[main] state store: %v", err)
	}

	q, err := queue.NewRedisQueue(ctx, rdb, cfg.SiteName)
	if err != nil {
		log.Fatalf("[main] queue: %v", err)
	}
	go queue.RunReaper(ctx, q, time.Second, timelineStore)

	queuePinger := resilience.NewPinger(func(pingCtx context.Context) error { return rdb.Ping(pingCtx).Err() })
	var storePinger resilience.Pinger
	if pool != nil {
		storePinger = resilience.NewPinger(pool.Ping)
	}
	go resilience.RunHealthChecks(ctx, degraded, queuePinger, storePinger, 10*time.Second)

	g := gate.New(reg, metrics, settingsProvider, uiCommands, degraded, incidents)
	tickerMgr := ticker.NewManager(reg, g, q).WithTimeline(timelineStore)

	host := logic.NewHost(logic.Default())
	pool2 := &worker.Pool{
		Concurrency: cfg.WorkerConcurrency,
		ReserveWait: cfg.ReserveWait,
		SiteID:      reg.Site().ID,
		Queue:       q,
		Registry:    reg,
		Metrics:     metrics,
		Settings:    settingsProvider,
		State:       stateStore,
		Host:        host,
		Writer:      writer,
		InFlight:    g,
		Extract:     commandwriter.Extract,
		Timeline:    timelineStore,
	}

	startPipeline := func(pipelineCtx context.Context) {
		go tickerMgr.Run(pipelineCtx)
		pool2.Run(pipelineCtx)
	}

	if cfg.HAEnabled {
		elector := coordination.NewLeaderElector(rdb, cfg.NodeID, cfg.LeaseTTL)
		elector.SetCallbacks(startPipeline, func() {
			log.Printf("[main] leadership lost, pipeline stopping")
		})
		go elector.Run(ctx)
	} else {
		go startPipeline(ctx)
	}

	hub := streaming.NewHub(func() interface{} {
		return timelineStore.Recent(50)
	}, time.Second)
	go hub.Run(ctx)

	connLimiter := streaming.NewConnectLimiter(1, 5)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		stats, _ := q.Stats(ctx)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"site":        cfg.SiteName,
			"degraded":    degraded.Snapshot(),
			"queue":       stats,
			"streamConns": hub.ClientCount(),
		})
	})
	mux.HandleFunc("/timeline", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Query().Get("unit") != "":
			json.NewEncoder(w).Encode(timelineStore.ForUnit(r.URL.Query().Get("unit")))
		case r.URL.Query().Get("job") != "":
			json.NewEncoder(w).Encode(timelineStore.ForJob(r.URL.Query().Get("job")))
		default:
			json.NewEncoder(w).Encode(timelineStore.Recent(50))
		}
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		if !connLimiter.Allow(r.RemoteAddr) {
			http.Error(w, "too many reconnect attempts", http.StatusTooManyRequests)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[main] stream upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("[main] http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[main] shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown error: %v", err)
	}
}

func buildRegistry(cfg runtime.Config) *registry.Registry {
	units := runtime.FixtureUnits[cfg.SiteID]
	class := runtime.FixtureSiteClass[cfg.SiteID]
	if class == "" {
		class = registry.SiteStandard
	}

	site := registry.Site{ID: cfg.SiteID, Name: cfg.SiteName, Class: class, LogicDir: cfg.LogicDir}
	reg, err := registry.Build(site, units, nil, logic.Default().KnownModules())
	if err != nil {
		log.Fatalf("[main] registry: %v", err)
	}
	return reg
}
