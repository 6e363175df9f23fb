package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/oksasatya/coherency-auth/config"
	"github.com/oksasatya/coherency-auth/internal/container"
	pginfra "github.com/oksasatya/coherency-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/coherency-auth/internal/interface/middleware"
	"github.com/oksasatya/coherency-auth/internal/router"
	"github.com/oksasatya/coherency-auth/pkg/helpers"
	"github.com/oksasatya/coherency-auth/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)
	validation.Init(cfg.PasswordMinEntropyBits)

	ctx := context.Background()

	if cfg.StorageDriver == config.StorageDriverPostgres {
		pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
			DSN:             cfg.PostgresDSN(),
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLife,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pool.Close()

		if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		container.SetPGPool(pool)
	} else {
		logger.Warn("STORAGE_DRIVER=memory; accounts and attempts are lost on restart")
	}

	// Redis backs the per-account login gate; the gate fails open when Redis is down
	if cfg.RedisAddr != "" {
		rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = rdb.Close() }()
		if err := helpers.PingRedis(ctx, rdb, 2*time.Second); err != nil {
			logger.WithError(err).Warn("redis unreachable; login gate will fail open")
		}
		container.SetRedis(rdb)
	}

	if cfg.RabbitMQURL != "" {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQAttemptQueue)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable; login attempts will not be published")
		} else {
			defer pub.Close()
			container.SetRabbitPub(pub)
		}
	}

	jwtManager, err := helpers.NewJWTManager(cfg.JWT())
	if err != nil {
		logger.WithError(err).Fatal("token issuer misconfigured")
	}
	hasher, err := helpers.NewPasswordHasher(cfg.Argon2())
	if err != nil {
		logger.WithError(err).Fatal("credential hasher misconfigured")
	}

	// Provide infra singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetJWT(jwtManager)
	container.SetHasher(hasher)

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if cfg.HTTPLogEnabled {
		r.Use(gin.Logger())
	}

	// Registry: auto-register modules using container
	reg := router.NewRegistry(r)
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("storage", cfg.StorageDriver).Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	logger.Info("server exited properly")
}
