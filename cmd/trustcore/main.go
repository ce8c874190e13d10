// Package main runs the settlement and trust core server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/nilelink/trustcore/internal/app"
	"github.com/nilelink/trustcore/internal/app/httpapi"
	"github.com/nilelink/trustcore/internal/app/metrics"
	"github.com/nilelink/trustcore/internal/app/storage/postgres"
	"github.com/nilelink/trustcore/internal/app/storage/redisvol"
	"github.com/nilelink/trustcore/internal/config"
	"github.com/nilelink/trustcore/internal/middleware"
	"github.com/nilelink/trustcore/internal/platform/migrations"
	"github.com/nilelink/trustcore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	auditPath := flag.String("audit-log", "", "path to the JSONL audit trail")
	flag.Parse()

	log := logger.NewDefault("trustcore")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise storage")
		os.Exit(1)
	}
	defer cleanup()

	application, err := app.New(stores, app.Options{
		DefaultRateBps: cfg.Commission.DefaultRateBps,
		MaxOrderUsd6:   cfg.Fraud.MaxOrderUsd6,
		RetentionBps:   cfg.Vault.RetentionBps,
		SweepSchedule:  cfg.Credit.SweepSchedule,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start services")
		os.Exit(1)
	}

	api, err := httpapi.NewHandler(application, *auditPath, log)
	if err != nil {
		log.WithError(err).Error("build http handler")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", buildMiddleware(cfg, log, ctx.Done())(api))

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	cancel()

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("stopped")
}

// buildStores selects the storage backends: postgres when a DSN is set,
// redis volume counters when an address is set, in-memory otherwise.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	var stores app.Stores
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return stores, cleanup, err
		}
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return stores, cleanup, err
		}
		if err := migrations.Apply(db); err != nil {
			_ = db.Close()
			return stores, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = db.Close() })

		pg := postgres.New(db)
		stores = app.Stores{
			Tenants:     pg,
			Devices:     pg,
			Commissions: pg,
			Anomalies:   pg,
			Volumes:     pg,
			Orders:      pg,
			Investments: pg,
			Credit:      pg,
			Protocol:    pg,
		}
		log.Info("using postgres storage")
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			cleanup()
			return stores, func() {}, err
		}
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		stores.Volumes = redisvol.New(rdb)
		log.WithField("addr", cfg.Redis.Addr).Info("using redis volume counters")
	}

	return stores, cleanup, nil
}

// buildMiddleware chains the standard stack: tracing outermost, then CORS,
// auth, rate limiting, and request metrics. The limiter's cleanup goroutine
// runs until stop closes.
func buildMiddleware(cfg *config.Config, log *logger.Logger, stop <-chan struct{}) func(http.Handler) http.Handler {
	tracing := middleware.NewTracingMiddleware(log)
	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	auth := middleware.NewAuthMiddleware([]byte(cfg.Server.AuthSecret), log, []string{"/healthz"})
	limiter := middleware.NewRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.RateBurst, log)
	limiter.StartCleanup(10*time.Minute, stop)

	return func(next http.Handler) http.Handler {
		return tracing.Handler(cors.Handler(auth.Handler(limiter.Handler(metrics.InstrumentHandler(next)))))
	}
}
