package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examscan-pipeline/internal/cache"
	"examscan-pipeline/internal/config"
	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/localstore"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/queue"
	"examscan-pipeline/internal/reconcile"
	"examscan-pipeline/internal/remote"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// The sync worker drains the offline queue on a fixed interval and whenever
// the API signals connectivity regain through the drain-trigger list. It can
// also refresh the roster mirror on a schedule.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting sync worker")

	db, err := localstore.Open(cfg.LocalStore.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer db.Close()

	cipher, err := localstore.LoadOrCreateCipher(cfg.LocalStore.KeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load cache encryption key")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, trigger wake-ups disabled")
			rdb = nil
		}
	}

	events := eventlog.New(rdb, cfg.Redis.EventList, cfg.Redis.EventListCap)
	store := remote.NewClient(cfg)
	cacheStore := cache.New(db, cipher, store, cfg.LocalStore.CacheTTL)
	offlineQueue := queue.New(db)
	reconciler := reconcile.New(store, offlineQueue, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Worker.DrainOnStart {
		if err := reconciler.DrainQueue(ctx); err != nil {
			log.Error().Err(err).Msg("Initial drain failed")
		}
	}

	go runDrainLoop(ctx, cfg, reconciler, rdb, log)
	if cfg.Worker.RefreshInterval > 0 {
		go runRefreshLoop(ctx, cfg, cacheStore, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker")
	cancel()
}

func runDrainLoop(ctx context.Context, cfg *config.Config, reconciler *reconcile.Reconciler, rdb *redis.Client, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.Worker.DrainInterval)
	defer ticker.Stop()

	trigger := make(chan struct{}, 1)
	if rdb != nil && cfg.Redis.DrainTrigger != "" {
		go watchTrigger(ctx, rdb, cfg.Redis.DrainTrigger, trigger, log)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-trigger:
		}

		if err := reconciler.DrainQueue(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Drain pass failed")
		}
	}
}

// watchTrigger blocks on the drain-trigger list so an API-side signal wakes
// the worker without waiting out the interval.
func watchTrigger(ctx context.Context, rdb *redis.Client, list string, trigger chan<- struct{}, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, err := rdb.BRPop(ctx, 5*time.Second, list).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Warn().Err(err).Msg("Trigger watch failed, backing off")
			time.Sleep(5 * time.Second)
			continue
		}

		select {
		case trigger <- struct{}{}:
		default:
			// A drain is already pending; collapsing signals is fine.
		}
	}
}

func runRefreshLoop(ctx context.Context, cfg *config.Config, cacheStore *cache.Store, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.Worker.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := cacheStore.Refresh(ctx, "")
			if err != nil {
				log.Warn().Err(err).Msg("Scheduled cache refresh failed")
				continue
			}
			log.Info().Int("students", count).Msg("Scheduled cache refresh completed")
		}
	}
}
