package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasknest-api/internal/auth"
	"github.com/BuzzLyutic/tasknest-api/internal/config"
	"github.com/BuzzLyutic/tasknest-api/internal/ratelimit"
	"github.com/BuzzLyutic/tasknest-api/internal/repo"
	"github.com/BuzzLyutic/tasknest-api/internal/server"
	"github.com/BuzzLyutic/tasknest-api/internal/service"
	"github.com/BuzzLyutic/tasknest-api/internal/telemetry"
	"github.com/BuzzLyutic/tasknest-api/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := repo.Open(connectCtx, repo.StoreConfig{
		Driver:         cfg.StoreDriver,
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MongoURI:       cfg.MongoURI,
		MongoDatabase:  cfg.MongoDatabase,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer store.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, cfg.TokenIssuer)
	authService := service.NewAuthService(store.Users, auth.NewPasswordHasher(cfg.BcryptCost), tokens)
	taskService := service.NewTaskService(store.Tasks, store.Users)

	authLimiter, globalLimiter, closeLimiters := newLimiters(ctx, cfg, logger)
	defer closeLimiters()

	sweeper := worker.NewSweeper(store.Tasks, logger, cfg.IdempotencyTTL, cfg.SweepInterval)
	sweeper.Start(ctx)

	router := server.NewRouter(server.Deps{
		Auth:           authService,
		Tasks:          taskService,
		Store:          store,
		Logger:         logger,
		AuthLimiter:    authLimiter,
		GlobalLimiter:  globalLimiter,
		TrustedProxies: trustedProxies,
		AllowedOrigins: cfg.AllowedOrigins,
		BasePath:       cfg.BasePath,
		StaticDir:      cfg.StaticDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("driver", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	sweeper.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped successfully!")
}

// newLimiters shares counters through Redis when REDIS_ADDR is set and keeps
// them per process otherwise.
func newLimiters(ctx context.Context, cfg config.Config, logger *zap.Logger) (authL, globalL ratelimit.Limiter, closeFn func()) {
	if cfg.RedisAddr == "" {
		logger.Info("Rate limiting in memory")
		return ratelimit.NewMemoryLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow),
			ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateWindow),
			func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Limiter calls fail open, so a cold Redis only costs the limit.
		logger.Warn("Redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		logger.Info("Rate limiting through Redis", zap.String("addr", cfg.RedisAddr))
	}

	return ratelimit.NewRedisLimiter(client, "tasknest:ratelimit:", cfg.AuthRateLimit, cfg.AuthRateWindow),
		ratelimit.NewRedisLimiter(client, "tasknest:ratelimit:", cfg.RateLimit, cfg.RateWindow),
		func() { _ = client.Close() }
}
