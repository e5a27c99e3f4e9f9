// scentwatch catalog-service
//
// Keeps a local catalog of perfume listings in sync with the shop:
//   - a scheduled crawl walks the listing pages from a persisted cursor and
//     upserts what it sees, announcing creations, updates and price moves
//   - a REST API for reading and editing the catalog directly
//   - a websocket feed pushing every change to live viewers
//   - a Redis pub/sub channel shared with peer instances; changes made by
//     peers are reconciled into the local catalog
//   - gRPC health checking for the store and the bus
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scentwatch/catalog-service/internal/api"
	"scentwatch/catalog-service/internal/bus"
	"scentwatch/catalog-service/internal/catalog"
	"scentwatch/catalog-service/internal/config"
	"scentwatch/catalog-service/internal/crawler"
	"scentwatch/catalog-service/internal/db"
	"scentwatch/catalog-service/internal/grpcserver"
	"scentwatch/catalog-service/internal/hub"
	"scentwatch/catalog-service/internal/propagate"
	"scentwatch/catalog-service/internal/reconcile"
	"scentwatch/catalog-service/internal/scheduler"
	"scentwatch/catalog-service/internal/scraper"
	"scentwatch/catalog-service/internal/store"
)

const (
	version       = "1.0.0"
	probeInterval = 30 * time.Second
)

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[catalog-service] Config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Store ────────────────────────────────────────────────────────────────
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[catalog-service] Store: %v", err)
	}
	defer st.Close()

	// ── Bus ──────────────────────────────────────────────────────────────────
	peers, closeBus := openBus(ctx, cfg, logger)
	defer closeBus()

	// ── Page source ──────────────────────────────────────────────────────────
	var src scraper.PageSource
	switch cfg.PageSource {
	case "browser":
		bs := scraper.NewBrowserSource(cfg.BrowserURL, cfg.PageTimeout(), logger)
		defer bs.Close()
		src = bs
	default:
		src = scraper.NewHTTPSource(cfg.PageTimeout(), cfg.FetchRPS)
	}
	extractor, err := scraper.NewListingExtractor(cfg.BaseURL, src)
	if err != nil {
		log.Fatalf("[catalog-service] Listing: %v", err)
	}

	// ── Domain wiring ────────────────────────────────────────────────────────
	viewers := hub.New(logger)
	prop := propagate.New(viewers, peers, logger)
	cr := crawler.New(extractor, crawler.Options{
		BatchLimit:  cfg.BatchLimit,
		MaxPages:    cfg.MaxPages,
		PageTimeout: cfg.PageTimeout(),
	}, logger)
	svc := catalog.NewService(st, cr, prop, logger)

	rec := reconcile.New(st, prop, logger)
	go func() {
		if err := rec.Run(ctx, peers); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reconciler stopped", "err", err)
		}
	}()

	sched := scheduler.New(func(ctx context.Context) error {
		_, err := svc.RunCrawl(ctx)
		return err
	}, cfg.CrawlInterval(), logger)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[catalog-service] Scheduler: %v", err)
	}

	// ── gRPC health ──────────────────────────────────────────────────────────
	probes := map[string]grpcserver.Probe{
		"store": st.Ping,
		"bus":   busProbe(peers),
	}
	gs := grpcserver.New(probes, probeInterval, logger)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[catalog-service] gRPC listen: %v", err)
	}
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Fatalf("[catalog-service] gRPC server error: %v", err)
		}
	}()
	go gs.Run(ctx)

	// ── HTTP server ──────────────────────────────────────────────────────────
	h := api.NewHandler(svc, viewers, st, version, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("[catalog-service] v%s listening on :%s (grpc :%s)", version, cfg.Port, cfg.GRPCPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[catalog-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[catalog-service] Shutting down…")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[catalog-service] Shutdown error: %v", err)
	}
	sched.Stop(shutdownCtx)
	gs.Shutdown()
	log.Println("[catalog-service] Stopped.")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.UsesPostgres() {
		log.Println("[catalog-service] Connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Println("[catalog-service] PostgreSQL connected ✓")
		return st, nil
	}

	log.Printf("[catalog-service] Opening SQLite %s…", cfg.DatabaseURL)
	conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLite(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Println("[catalog-service] SQLite ready ✓")
	return st, nil
}

// openBus connects to Redis when configured. An unreachable Redis is not
// fatal: the service keeps running with publishing disabled.
func openBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bus.Bus, func()) {
	if cfg.RedisURL == "" {
		log.Println("[catalog-service] REDIS_URL not set, using in-process bus")
		return bus.NewMemory(), func() {}
	}

	log.Println("[catalog-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("[catalog-service] Redis unavailable, peers disabled: %v", err)
		return bus.NewRedis(nil, cfg.BusChannel, logger), func() {}
	}
	log.Println("[catalog-service] Redis connected ✓")
	return bus.NewRedis(rdb, cfg.BusChannel, logger), func() { rdb.Close() }
}

func busProbe(b bus.Bus) grpcserver.Probe {
	if p, ok := b.(interface{ Ping(context.Context) error }); ok {
		return p.Ping
	}
	return func(context.Context) error { return nil }
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
