package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/screening-settlement/internal/api"
	"github.com/ayo6706/screening-settlement/internal/config"
	"github.com/ayo6706/screening-settlement/internal/db"
	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/events"
	"github.com/ayo6706/screening-settlement/internal/gateway"
	"github.com/ayo6706/screening-settlement/internal/observability"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/ayo6706/screening-settlement/internal/runlock"
	"github.com/ayo6706/screening-settlement/internal/service"
	"github.com/ayo6706/screening-settlement/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// App holds the process-wide dependencies shared by every command.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Repo       *repository.Repository
	Settlement *service.Settlement

	db        *pgxpool.Pool
	redis     *redis.Client
	pool      *worker.Pool
	publisher events.Publisher
}

// New loads configuration and connects every dependency.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	observability.Init()

	a := &App{Config: cfg, Logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	// Gateway workers plus the scheduler and admin API share the pool.
	pool, err := db.Connect(ctx, cfg.DatabaseURL, int32(cfg.Concurrency)+4)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.db = pool
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	a.Repo = repository.NewRepository(repository.NewStore(pool))

	var locker runlock.Locker = runlock.NewLocalLocker()
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		locker = runlock.NewRedisLocker(client)
	} else {
		a.Logger.Warn("REDIS_URL not set; run lock is process-local")
	}

	a.publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		a.publisher = kp
	}

	a.pool, err = worker.NewPool(cfg.Concurrency)
	if err != nil {
		return err
	}

	a.Settlement = service.NewSettlement(
		a.Repo,
		newGateway(cfg),
		domain.NewVenueDirectory(cfg.VenueAccounts, cfg.VenuePrefixes),
		a.pool,
		locker,
		a.publisher,
		service.Options{
			Currency:                cfg.Currency,
			SuccessCode:             cfg.GatewaySuccess,
			GatewayTimeout:          cfg.GatewayTimeout,
			ClaimRecoveryWindow:     cfg.ClaimRecovery,
			RunLockTTL:              cfg.RunLockTTL,
			PayoutRetryLookbackDays: cfg.RetryLookbackDays,
		},
	)
	return nil
}

// Close releases every dependency that was opened.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Release()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("failed to close event publisher", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.Logger.Sync()
}

// Serve runs the admin HTTP server and the job scheduler until ctx is canceled
// or either of them fails.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config

	scheduler, err := worker.NewScheduler(func(ctx context.Context, job string, referenceDate time.Time) error {
		_, err := a.Settlement.RunJob(ctx, job, referenceDate, service.RunOptions{})
		if errors.Is(err, service.ErrRunInProgress) {
			return nil
		}
		return err
	}, cfg.Location)
	if err != nil {
		return err
	}
	for _, job := range domain.Jobs {
		if err := scheduler.Register(job, cfg.Schedules[job]); err != nil {
			return err
		}
	}

	var redisCmd redis.Cmdable
	if a.redis != nil {
		redisCmd = a.redis
	}
	router := api.NewRouter(cfg, a.Logger, a.db, redisCmd, a.Settlement, a.Repo)
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Manual runs are answered when the run finishes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		a.Logger.Info("stopping scheduler")
		return scheduler.Stop()
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.Logger.Info("shutdown complete")
	return nil
}

func newGateway(cfg *config.Config) gateway.Gateway {
	if cfg.GatewayMock {
		zap.L().Warn("using mock finance gateway")
		gw := gateway.NewMockGateway()
		gw.SuccessCode = cfg.GatewaySuccess
		return gw
	}
	return gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
