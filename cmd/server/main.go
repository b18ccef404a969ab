package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/viewisland/internal/config"
	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/geo"
	"github.com/viewisland/internal/handler"
	"github.com/viewisland/internal/logging"
	"github.com/viewisland/internal/metrics"
	"github.com/viewisland/internal/middleware"
	"github.com/viewisland/internal/router"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabaseURL, logger.Named("gorm")); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	resolver := openResolver(cfg, logger)
	if closer, ok := resolver.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	api := handler.NewAPI(db.DB, handler.Options{
		Geo:      resolver,
		Location: cfg.Location(),
		JWT:      cfg.JWTSecret,
		TokenTTL: cfg.JWTTTL,
	})

	ctx := context.Background()
	if created, err := api.Auth().EnsureAdmin(ctx, cfg.SuperRootEmail, cfg.SuperRootPassword); err != nil {
		logger.Fatal("failed to bootstrap super admin", zap.Error(err))
	} else if created {
		logger.Info("super admin account created", zap.String("email", cfg.SuperRootEmail))
	}

	limiter, redisClient := openLimiter(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	r := router.SetupRouter(api, router.Options{
		SessionSecret:  cfg.SessionSecret,
		ViewLimiter:    limiter,
		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopGauge := make(chan struct{})
	go reportDBConnections(stopGauge)

	go func() {
		logger.Info("server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stopGauge)

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

// openResolver 配置了 GEOIP_DB_PATH 时使用 MaxMind 数据库，否则所有来源记为 Unknown。
func openResolver(cfg config.AppConfig, logger *zap.Logger) geo.Resolver {
	if cfg.GeoIPDBPath == "" {
		logger.Info("GEOIP_DB_PATH not set, views will be attributed to Unknown")
		return geo.Nop
	}
	resolver, err := geo.OpenMaxMind(cfg.GeoIPDBPath, logger)
	if err != nil {
		logger.Warn("failed to open GeoIP database, falling back to Unknown", zap.Error(err))
		return geo.Nop
	}
	return resolver
}

// openLimiter 配置了 REDIS_URL 时使用 Redis 限流，多实例共享计数。
func openLimiter(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (middleware.Limiter, *redis.Client) {
	if cfg.RedisURL == "" {
		return middleware.NewMemoryLimiter(cfg.ViewRateLimit, cfg.ViewRateWindow), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, using in-memory rate limiter", zap.Error(err))
		return middleware.NewMemoryLimiter(cfg.ViewRateLimit, cfg.ViewRateWindow), nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, limiter will fall back per request", zap.Error(err))
	}
	return middleware.NewRedisLimiter(client, cfg.ViewRateLimit, cfg.ViewRateWindow), client
}

func reportDBConnections(stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		if sqlDB, err := db.DB.DB(); err == nil {
			metrics.SetDBOpenConnections(sqlDB.Stats().OpenConnections)
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
