package workerapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/config"
	"github.com/ivankudzin/matchcore/internal/infra/events"
	"github.com/ivankudzin/matchcore/internal/jobs/reconcile"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
	redrepo "github.com/ivankudzin/matchcore/internal/repo/redis"
	matchsvc "github.com/ivankudzin/matchcore/internal/services/matches"
	usersvc "github.com/ivankudzin/matchcore/internal/services/users"
)

type reconcileRunner interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	postgres  *pgxpool.Pool
	redis     *goredis.Client
	publisher events.Publisher
	reconcile reconcileRunner
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("init postgres for worker app: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redrepo.Ping(ctx, redisClient); err != nil {
		logger.Warn("redis unavailable, cache invalidation degraded", zap.Error(err))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			logger.Warn("amqp init failed, match events disabled", zap.Error(err))
		} else {
			publisher = p
		}
	}

	userRepo := pgrepo.NewUserRepo(pool)
	swipeRepo := pgrepo.NewSwipeRepo(pool)
	directory := usersvc.NewDirectory(userRepo, redrepo.NewUserCacheRepo(redisClient, cfg.Cache.UserTTL), logger)
	detector := matchsvc.NewDetector(matchsvc.DetectorDependencies{
		Tx:        pgrepo.NewTxManager(pool),
		Swipes:    swipeRepo,
		Pairs:     pgrepo.NewMatchRepo(pool),
		Counters:  userRepo,
		Publisher: publisher,
		Cache:     directory,
		Logger:    logger,
	}, matchsvc.DetectorConfig{
		MaxAttempts:     cfg.Match.RetryMaxAttempts,
		InitialInterval: cfg.Match.RetryInitialInterval,
		MaxInterval:     cfg.Match.RetryMaxInterval,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		postgres:  pool,
		redis:     redisClient,
		publisher: publisher,
		reconcile: reconcile.New(swipeRepo, detector, cfg.Jobs.ReconcileBatch, logger),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("worker app started", zap.Duration("reconcile_interval", a.interval()))

	err := a.runReconcileLoop(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		a.logger.Info("worker app stopped")
		return nil
	}
	return err
}

func (a *App) interval() time.Duration {
	if a.cfg.Jobs.ReconcileInterval <= 0 {
		return 5 * time.Minute
	}
	return a.cfg.Jobs.ReconcileInterval
}

// runReconcileLoop sweeps once at startup and then on every tick. A failed
// sweep is logged and retried on the next tick.
func (a *App) runReconcileLoop(ctx context.Context) error {
	if a.reconcile == nil {
		return nil
	}

	a.sweep(ctx)

	ticker := time.NewTicker(a.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	if _, err := a.reconcile.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("match reconciliation failed", zap.Error(err))
	}
}

func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close event publisher", zap.Error(err))
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
