package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	echoapi "github.com/centsible/centsible/api/echo"
	"github.com/centsible/centsible/config"
	"github.com/centsible/centsible/internal/audit"
	"github.com/centsible/centsible/internal/auth"
	"github.com/centsible/centsible/internal/metrics"
	"github.com/centsible/centsible/internal/ratelimit"
	"github.com/centsible/centsible/mongodb"
	"github.com/centsible/centsible/services"
	"github.com/centsible/centsible/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogger(cfg)
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("log_level", cfg.LogLevel).
		Msg("Starting centsible auth server")
	if cfg.InsecureDevSecret() {
		log.Warn().Msg("JWT_SECRET_KEY not set, using the built-in development key. DO NOT run like this in production.")
	}

	tracerProvider, err := tracing.InitTracerProvider("centsible-auth")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer provider")
	}

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	db := mongodb.GetDB()

	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user repository")
	}
	sessionRepo, err := mongodb.NewSessionRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session repository")
	}
	auditRepo, err := mongodb.NewAuditLogRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audit log repository")
	}

	counterStore, closeCounters := newCounterStore(ctx, cfg)
	defer closeCounters()

	hasher := auth.NewBcryptPasswordHasher(cfg.BcryptCost)
	tokenService := services.NewTokenService(cfg.JWTSecretKey, "centsible", cfg.AccessTokenTTL(), cfg.SessionTTL())
	auditor := audit.NewEmitter(auditRepo)
	authService := services.NewAuthService(userRepo, sessionRepo, tokenService, hasher, auditor, cfg.KeepaliveExtendThreshold())

	limiter := ratelimit.NewLimiter(counterStore, ratelimit.DefaultLimits())
	lockout := ratelimit.NewLockoutGuard(counterStore,
		int64(cfg.LockoutThreshold),
		time.Duration(cfg.LockoutMinutes)*time.Minute)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics.Register(registry)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger())

	authAPI := echoapi.NewAuthAPI(authService, limiter, lockout, cfg.IsProduction(), cfg.SessionTTL())
	authAPI.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer provider shutdown error")
	}
	if err := mongodb.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("MongoDB disconnect error")
	}
	log.Info().Msg("Server gracefully stopped")
}

func initLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	if err != nil {
		log.Warn().Str("configured_log_level", cfg.LogLevel).Msg("Invalid LOG_LEVEL, defaulting to info")
	}
}

// newCounterStore picks where rate-limit and lockout windows live: redis
// when configured (shared across instances), otherwise in-process memory.
func newCounterStore(ctx context.Context, cfg *config.ServerConfig) (ratelimit.KeyedCounterStore, func()) {
	if cfg.RedisAddr == "" {
		store := ratelimit.NewMemoryCounterStore()
		return store, func() { _ = store.Close() }
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to redis")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("Using redis-backed rate limit counters")
	store := ratelimit.NewRedisCounterStore(client, "centsible")
	return store, func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Redis close error")
		}
	}
}

// requestLogger emits one structured line per request in the access-log
// style of the rest of the process.
func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error()
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Err(v.Error).
				Msg("request")
			return nil
		},
	})
}
