package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/config"
	"github.com/ivankudzin/matchcore/internal/infra/events"
	s3infra "github.com/ivankudzin/matchcore/internal/infra/s3"
	pgrepo "github.com/ivankudzin/matchcore/internal/repo/postgres"
	redrepo "github.com/ivankudzin/matchcore/internal/repo/redis"
	authsvc "github.com/ivankudzin/matchcore/internal/services/auth"
	entsvc "github.com/ivankudzin/matchcore/internal/services/entitlements"
	feedsvc "github.com/ivankudzin/matchcore/internal/services/feed"
	matchsvc "github.com/ivankudzin/matchcore/internal/services/matches"
	mediasvc "github.com/ivankudzin/matchcore/internal/services/media"
	ratesvc "github.com/ivankudzin/matchcore/internal/services/rate"
	swipesvc "github.com/ivankudzin/matchcore/internal/services/swipes"
	usersvc "github.com/ivankudzin/matchcore/internal/services/users"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	publisher  events.Publisher
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := pgrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redrepo.Ping(ctx, redisClient); err != nil {
		log.Warn("redis unavailable, cache and rate limits degraded", zap.Error(err))
	}

	var signer mediasvc.URLSigner
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, photo urls disabled", zap.Error(err))
	} else {
		signer = s3infra.NewPhotoSigner(c, cfg.S3.Bucket, cfg.S3.PhotoURLTTL)
	}

	publisher := newPublisher(cfg.Events, log)

	txManager := pgrepo.NewTxManager(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	swipeRepo := pgrepo.NewSwipeRepo(pool)
	matchRepo := pgrepo.NewMatchRepo(pool)
	blockRepo := pgrepo.NewBlockRepo(pool)
	feedRepo := pgrepo.NewFeedRepo(pool)
	entitlementRepo := pgrepo.NewEntitlementRepo(pool)
	userCache := redrepo.NewUserCacheRepo(redisClient, cfg.Cache.UserTTL)
	rateRepo := redrepo.NewRateRepo(redisClient)

	directory := usersvc.NewDirectory(userRepo, userCache, log)
	mediaService := mediasvc.NewService(signer, log)
	entitlementService := entsvc.NewService(entitlementRepo)
	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Limits.SwipesPerHour)
	tokenParser := authsvc.NewTokenParser(cfg.Auth.JWTSecret, cfg.Auth.JWTLeeway)
	authService := authsvc.NewService(tokenParser, directory, userRepo, log)

	detector := matchsvc.NewDetector(matchsvc.DetectorDependencies{
		Tx:        txManager,
		Swipes:    swipeRepo,
		Pairs:     matchRepo,
		Counters:  userRepo,
		Publisher: publisher,
		Cache:     directory,
		Logger:    log,
	}, matchsvc.DetectorConfig{
		MaxAttempts:     cfg.Match.RetryMaxAttempts,
		InitialInterval: cfg.Match.RetryInitialInterval,
		MaxInterval:     cfg.Match.RetryMaxInterval,
	})
	matchService := matchsvc.NewService(matchsvc.Dependencies{
		Tx:      txManager,
		Matches: matchRepo,
		Users:   userRepo,
		Blocks:  blockRepo,
		Photos:  mediaService,
		Cache:   directory,
		Logger:  log,
	})
	swipeService := swipesvc.NewService(swipesvc.Dependencies{
		Tx:       txManager,
		Swipes:   swipeRepo,
		Users:    userRepo,
		Pairs:    matchRepo,
		Detector: detector,
		Photos:   mediaService,
		Logger:   log,
	})
	feedService := feedsvc.NewService(feedsvc.Dependencies{
		Candidates: feedRepo,
		Blocks:     blockRepo,
		Viewers:    directory,
		Swipes:     swipeRepo,
		Photos:     mediaService,
		Logger:     log,
	}, feedsvc.Config{
		DefaultLimit: cfg.Discovery.DefaultLimit,
		MaxLimit:     cfg.Discovery.MaxLimit,
	})

	RegisterRoutes(r, Dependencies{
		Auth:    authService,
		Premium: entitlementService,
		Swipes:  swipeService,
		Limiter: rateLimiter,
		Feed:    feedService,
		Matches: matchService,
		Logger:  log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		publisher:  publisher,
		httpRouter: r,
	}, nil
}

// newPublisher falls back to dropping events when no broker is configured or
// reachable; match creation never depends on delivery.
func newPublisher(cfg config.EventsConfig, log *zap.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		log.Info("amqp url is empty, match events disabled")
		return events.NopPublisher{}
	}
	publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		log.Warn("amqp init failed, match events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return publisher
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
