package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"examscan-pipeline/internal/api"
	"examscan-pipeline/internal/cache"
	"examscan-pipeline/internal/config"
	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/gateway"
	"examscan-pipeline/internal/importer"
	"examscan-pipeline/internal/localstore"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/queue"
	"examscan-pipeline/internal/reconcile"
	"examscan-pipeline/internal/remote"
	"examscan-pipeline/internal/session"
	"examscan-pipeline/internal/storage"
	"examscan-pipeline/internal/validate"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Open the local durable store (roster mirror + offline queue)
	db, err := localstore.Open(cfg.LocalStore.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer db.Close()

	cipher, err := localstore.LoadOrCreateCipher(cfg.LocalStore.KeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load cache encryption key")
	}

	// Redis is optional: the event mirror and drain trigger degrade to
	// local-only behavior without it.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, continuing without it")
			rdb = nil
		}
	}

	events := eventlog.New(rdb, cfg.Redis.EventList, cfg.Redis.EventListCap)
	store := remote.NewClient(cfg)
	cacheStore := cache.New(db, cipher, store, cfg.LocalStore.CacheTTL)
	offlineQueue := queue.New(db)

	resolver := validate.NewResolver(store, cacheStore, events, validate.RetryPolicy{
		Attempts: cfg.Remote.RetryAttempts,
		Delay:    cfg.Remote.RetryDelay,
	})

	operator := os.Getenv("OPERATOR_ID")
	gw := gateway.New(store, resolver, offlineQueue, session.Static{Operator: operator}, events)
	reconciler := reconcile.New(store, offlineQueue, events)
	imp := importer.New(store, cacheStore, events, cfg.Import)

	var objects storage.ObjectStore
	if cfg.Storage.S3.Bucket != "" {
		objects, err = storage.NewS3Store(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init file storage")
		}
	}

	handler := api.NewHandler(resolver, gw, reconciler, cacheStore, imp, objects, rdb, cfg)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
