package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	mbhttp "github.com/CivStat/MetricBoard/internal/adapter/http"
	mbnats "github.com/CivStat/MetricBoard/internal/adapter/nats"
	"github.com/CivStat/MetricBoard/internal/adapter/otel"
	"github.com/CivStat/MetricBoard/internal/adapter/postgres"
	"github.com/CivStat/MetricBoard/internal/adapter/ristretto"
	"github.com/CivStat/MetricBoard/internal/adapter/ws"
	"github.com/CivStat/MetricBoard/internal/config"
	"github.com/CivStat/MetricBoard/internal/logger"
	"github.com/CivStat/MetricBoard/internal/middleware"
	"github.com/CivStat/MetricBoard/internal/port/broadcast"
	"github.com/CivStat/MetricBoard/internal/port/messagequeue"
	"github.com/CivStat/MetricBoard/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"auth_enabled", cfg.Auth.Enabled,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS, optional. An empty URL disables event publication.
	var queue messagequeue.Queue
	var natsQueue *mbnats.Queue
	if cfg.NATS.URL != "" {
		natsQueue, err = mbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsQueue.Close() }()
		queue = natsQueue
	} else {
		slog.Info("nats disabled")
	}

	// Document cache
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// OpenTelemetry
	shutdownOtel, err := otel.Init(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	obs, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store, &cfg.Auth)
	sectorSvc := service.NewSectorService(store)

	// With NATS enabled the hub is fed from the event subscription below,
	// so every instance fans out events regardless of which one took the
	// write. Without NATS the service broadcasts to the hub directly.
	var svcHub broadcast.Broadcaster
	if natsQueue == nil {
		svcHub = hub
	}
	metricsSvc := service.NewMetricsService(store, cache, queue, svcHub, obs, cfg.Apply, cfg.Cache)

	if natsQueue != nil {
		cancelSub, err := natsQueue.Subscribe(ctx, messagequeue.SubjectMetricAll, func(subject string, data []byte) error {
			event := ws.EventForSubject(subject)
			if event == "" {
				return nil
			}
			var p messagequeue.MetricEventPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode event payload: %w", err)
			}
			hub.BroadcastEvent(ctx, event, ws.TableEvent{
				MetricID:  p.MetricID,
				SectorID:  p.SectorID,
				TableName: p.TableName,
				Version:   p.Version,
				IsDraft:   p.IsDraft,
				Op:        p.Op,
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("event subscriber: %w", err)
		}
		defer cancelSub()
	}

	authSvc.StartTokenCleanup(ctx, time.Hour)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	// --- HTTP ---
	handlers := &mbhttp.Handlers{
		Metrics: metricsSvc,
		Sectors: sectorSvc,
		Auth:    authSvc,
		Hub:     hub,
		Health: func() map[string]any {
			status := map[string]any{
				"postgres":       pool.Ping(ctx) == nil,
				"ws_connections": hub.ConnectionCount(),
			}
			if natsQueue != nil {
				status["nats"] = natsQueue.IsConnected()
			}
			return status
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mbhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(mbhttp.SecurityHeaders)
	r.Use(mbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(authSvc, cfg.Auth.Enabled))

	mbhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(r, "metricboard"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
