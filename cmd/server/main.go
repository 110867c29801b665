package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/tripplanner/internal/api"
	"github.com/neexbeast/tripplanner/internal/cache"
	"github.com/neexbeast/tripplanner/internal/config"
	"github.com/neexbeast/tripplanner/internal/directions"
	"github.com/neexbeast/tripplanner/internal/draft"
	"github.com/neexbeast/tripplanner/internal/metrics"
	"github.com/neexbeast/tripplanner/internal/planner"
	"github.com/neexbeast/tripplanner/internal/route"
	"github.com/neexbeast/tripplanner/internal/schedule"
	"github.com/neexbeast/tripplanner/internal/scoring"
	"github.com/neexbeast/tripplanner/internal/storage"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Run migrations.
	if err := storage.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied")

	// Travel times are cached in Redis when configured, in memory otherwise.
	var travelCache route.RouteCache
	var redisPinger *redisPingerAdapter
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		travelCache = cache.NewRouteCache(redisClient, cfg.TravelCacheTTL)
		redisPinger = &redisPingerAdapter{client: redisClient}
	} else {
		mem := cache.NewMemoryCache(cfg.TravelCacheTTL)
		travelCache = mem
		stopSweep := sweepEvery(mem, time.Hour)
		defer stopSweep()
		log.Info("redis not configured, caching travel times in memory")
	}

	// The routing collaborator is optional; without it every leg is estimated.
	var router route.Router
	if cfg.KakaoKey != "" {
		router = directions.NewKakaoClient(cfg.KakaoKey)
	} else {
		log.Info("routing api key not set, using distance-based travel estimates")
	}

	metrics.Register()

	// Wire dependencies.
	repo := storage.NewRepository(pool)
	estimator := route.NewEstimator(router, travelCache, route.EstimatorConfig{
		Concurrency: cfg.RoutingConcurrency,
		RPS:         cfg.RoutingRPS,
		Timeout:     cfg.RoutingTimeout,
	}, log)
	optimizer := route.NewOptimizer(estimator, log)
	scheduler := schedule.NewScheduler(cfg.Policy, log)
	drafts := draft.NewClientWithURL(cfg.DraftBaseURL, cfg.OpenAIKey, cfg.DraftModel)
	trips := planner.NewPlanner(repo, scoring.NewScorer(), drafts, optimizer, scheduler, log)
	handlers := api.NewHandlers(trips, trips, log)

	// Build router with pingers adapted for health check.
	dbPinger := &pgxPoolPinger{pool: pool}

	var httpRouter http.Handler
	if redisPinger != nil {
		httpRouter = api.NewRouter(handlers, cfg.BearerToken, cfg.CORSOrigins, dbPinger, redisPinger, log)
	} else {
		httpRouter = api.NewRouter(handlers, cfg.BearerToken, cfg.CORSOrigins, dbPinger, nil, log)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// sweepEvery evicts expired in-memory entries on a ticker until stopped.
func sweepEvery(c *cache.MemoryCache, every time.Duration) (stop func()) {
	ticker := time.NewTicker(every)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// pgxPoolPinger adapts pgxpool.Pool to the api.dbPinger interface.
type pgxPoolPinger struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisPingerAdapter adapts redis.Client to the api.redisPinger interface.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
