package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cloudgate-io/permcache/cache"
	"github.com/cloudgate-io/permcache/config"
	"github.com/cloudgate-io/permcache/controller"
	"github.com/cloudgate-io/permcache/evaluator"
	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/router"
	"github.com/cloudgate-io/permcache/util"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger("logging")
	defer logger.Sync()

	cfg := config.GetConfig()

	// Initialize the L2 distributed store (optional, best-effort)
	var distributed cache.DistributedStore
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			// A missing L2 is a degradation, never a startup failure.
			logger.Warn("Redis unreachable at startup, running L1-only", zap.Error(err))
		} else {
			distributed = cache.NewRedisStore(client, cache.RedisStoreOptions{
				OpTimeout:        cfg.Redis.OpTimeout,
				TTL:              cfg.Redis.TTL,
				FailureThreshold: cfg.Redis.FailureThreshold,
				ProbeInterval:    cfg.Redis.ProbeInterval,
			}, nil)
		}
	}

	// Initialize the evaluator client
	evalClient := evaluator.NewHTTPClient(cfg.Evaluator.URL, cfg.Evaluator.Timeout)

	// Initialize the cache manager
	manager, err := cache.NewManager(cache.Options{
		Evaluator:           evalClient,
		Distributed:         distributed,
		L1Capacity:          cfg.Cache.L1Capacity,
		L1Shards:            cfg.Cache.L1Shards,
		TTL:                 cfg.Cache.TTL,
		JanitorInterval:     cfg.Cache.JanitorInterval,
		EventBufferSize:     cfg.Cache.EventBufferSize,
		BatchConcurrency:    cfg.Cache.BatchConcurrency,
		WarmConcurrency:     cfg.Cache.WarmConcurrency,
		FailOpenPermissions: cfg.Cache.FailOpenPermissions,
	})
	if err != nil {
		logger.Fatal("Failed to initialize cache manager", zap.Error(err))
	}
	defer manager.Close()

	// Initialize EventBus and bind the RBAC mutation topics
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)
	manager.BindEventBus(eventBus)

	// Initialize services and utilities
	validationUtil := util.NewValidationUtil()

	// Initialize controllers
	cacheController := controller.NewCacheController(manager, validationUtil)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := router.SetupRouter(cacheController, manager)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
