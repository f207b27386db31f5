package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/teamdraft/internal/adapter/httpserver"
	"github.com/pscheid92/teamdraft/internal/adapter/memory"
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
	"github.com/pscheid92/teamdraft/internal/adapter/postgres"
	"github.com/pscheid92/teamdraft/internal/adapter/redis"
	"github.com/pscheid92/teamdraft/internal/app"
	"github.com/pscheid92/teamdraft/internal/coordinator"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
	"github.com/pscheid92/teamdraft/internal/platform/config"
	"github.com/pscheid92/teamdraft/internal/platform/logging"
	"github.com/pscheid92/teamdraft/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const retentionLeaseKey = "leader:retention"

func runGracefulShutdown(srv *httpserver.Server, appSvc *app.Service) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.StoreMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.StoreMetrics) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "teamdraft"
	}
	return host + "-" + uuid.NewString()[:8]
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "backend", cfg.Backend, "version", version.Get().String())

	reg := metrics.NewRegistry()
	draftMetrics := metrics.NewDraftMetrics(reg)
	storeMetrics := metrics.NewStoreMetrics(reg)

	engine := draft.NewEngine(draft.Policy{AllowDuplicateJoin: cfg.AllowDuplicateJoin}, clock, nil)
	coordOpts := coordinator.Options{DeleteOnStop: cfg.DeleteOnStop, Metrics: draftMetrics}

	var healthChecks []httpserver.HealthCheck

	var pool *pgxpool.Pool
	if cfg.Backend == config.BackendPostgres {
		pool = setupDB(cfg, storeMetrics)
		defer pool.Close()
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: config.BackendPostgres, Check: pool.Ping})
	}

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient = setupRedis(context.Background(), cfg, storeMetrics)
		defer func() { _ = redisClient.Close() }()
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  config.BackendRedis,
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var coord domain.Coordinator
	switch cfg.Backend {
	case config.BackendPostgres:
		coord = coordinator.NewPessimistic(postgres.NewSessionStore(pool), engine, coordOpts)
	case config.BackendRedis:
		docs := redis.NewDocumentStore(redisClient, cfg.Retention)
		coord = coordinator.NewOptimistic(docs, engine, clock, coordinator.OptimisticConfig{
			LockTTL:     cfg.LockTTL,
			MaxAttempts: cfg.MaxAttempts,
		}, coordOpts)
	default:
		slog.Warn("Using in-memory backend, sessions are lost on restart")
		coord = coordinator.NewPessimistic(memory.NewSessionStore(), engine, coordOpts)
	}

	appSvc := app.NewService(coord, engine, clock, app.Options{
		AutoJoinOwner:   cfg.AutoJoinOwner,
		MutationTimeout: cfg.MutationTimeout,
		Metrics:         draftMetrics,
	})

	// Redis documents expire on their own TTL.
	if cfg.Backend != config.BackendRedis {
		retention := app.RetentionConfig{Retention: cfg.Retention, Interval: cfg.RetentionInterval}
		if redisClient != nil {
			retention.Lease = redis.NewLeaderLease(redisClient, retentionLeaseKey, instanceID(), cfg.RetentionInterval+time.Minute)
		}
		appSvc.StartRetention(retention)
	}

	srv := httpserver.NewServer(cfg, appSvc, reg, healthChecks)

	done := runGracefulShutdown(srv, appSvc)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
