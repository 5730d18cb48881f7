package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/rolecounter/internal/app"
	"github.com/odyssey-erp/rolecounter/internal/contract"
	contracthttp "github.com/odyssey-erp/rolecounter/internal/contract/http"
	"github.com/odyssey-erp/rolecounter/internal/observability"
	"github.com/odyssey-erp/rolecounter/internal/platform/cache"
	"github.com/odyssey-erp/rolecounter/internal/platform/db"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
	"github.com/odyssey-erp/rolecounter/internal/state"
	"github.com/odyssey-erp/rolecounter/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rolecounter", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var grants contract.Grants
	if cfg.BootstrapGrantsFile != "" {
		if grants, err = contract.LoadGrants(cfg.BootstrapGrantsFile); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics()
	engineCfg := contract.Config{
		Store:   store,
		Self:    rbac.AccountID(cfg.ContractAccountID),
		Grants:  grants,
		Metrics: metrics,
		Logger:  logger,
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	var jobHandler *jobs.Handler
	if cfg.AuditEnabled {
		client := asynq.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		engineCfg.Publisher = jobs.NewEventPublisher(client, cfg.ContractAccountID)

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	engine, err := contract.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	if _, err := engine.Deploy(ctx); err != nil {
		if !errors.Is(err, contract.ErrAlreadyDeployed) {
			return err
		}
		logger.Info("contract already deployed", slog.String("account", cfg.ContractAccountID))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ContractHandler: contracthttp.NewHandler(logger, engine, rbac.Middleware{Header: cfg.CallerHeader, Logger: logger}),
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *app.Config, logger *slog.Logger) (state.Store, func(), error) {
	switch cfg.StoreDriver {
	case app.StoreRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
		return state.NewRedisStore(client, cfg.StateKeyPrefix), closeFn, nil
	case app.StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		store := state.NewPostgresStore(pool, cfg.ContractAccountID)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		logger.Warn("using in-memory store, state is lost on restart")
		return state.NewMemoryStore(), func() {}, nil
	}
}
