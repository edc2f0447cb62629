package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ifarmer/ifarmer-api/internal/accounts"
	"github.com/ifarmer/ifarmer-api/internal/app"
	"github.com/ifarmer/ifarmer-api/internal/identity"
	"github.com/ifarmer/ifarmer-api/internal/observability"
	"github.com/ifarmer/ifarmer-api/internal/platform/cache"
	"github.com/ifarmer/ifarmer-api/internal/platform/db"
	"github.com/ifarmer/ifarmer-api/internal/registry"
	"github.com/ifarmer/ifarmer-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := identity.NewPGStore(pool, cfg.Provisioning.BcryptCost)

	container := registry.NewContainer()
	source := registry.WithPrefixes(registry.Manifest{
		accounts.Components(accounts.Guard(store, accounts.GuardOptions{Logger: logger})),
	}, cfg.RegistryPrefixes...)
	bindings, err := registry.NewBuilder(logger, cfg.Policy()).DiscoverAndRegister(source, container)
	if err != nil {
		logger.Error("component registry", slog.Any("error", err))
		os.Exit(1)
	}
	metrics.SetRegistryBindings(len(bindings))
	logger.Info("component registry ready",
		slog.Int("bindings", len(bindings)),
		slog.String("policy", cfg.Policy().String()),
	)

	if err := provision(ctx, cfg, logger, store, redisClient, metrics); err != nil {
		logger.Error("identity provisioning failed, refusing to serve", identity.Diagnostic(err)...)
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		_ = jobClient.Close()
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, container),
		JobsHandler:     jobs.NewHandler(inspector, jobClient, logger),
		Metrics:         metrics,
		Ready:           readiness(pool, redisClient),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("http server stopped")
}

// provision applies the configured desired identity state. Replicas
// serialise on a redis lock.
func provision(ctx context.Context, cfg *app.Config, logger *slog.Logger, store identity.Store, client *redis.Client, metrics *observability.Metrics) error {
	if !cfg.Provisioning.Enabled {
		logger.Info("identity provisioning disabled")
		return nil
	}
	state, err := cfg.Provisioning.DesiredState()
	if err != nil {
		return err
	}
	opts := cfg.Provisioning.Options()
	opts.Lock = identity.NewRedisLock(client, cfg.Provisioning.LockTTL, cfg.Provisioning.LockWait)
	opts.Metrics = metrics

	_, err = identity.NewProvisioner(store, logger, opts).Provision(ctx, state)
	return err
}

func readiness(pool *pgxpool.Pool, client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return client.Ping(ctx).Err()
	}
}
