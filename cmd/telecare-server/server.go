package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/telecare/telecare/internal/config"
	"github.com/telecare/telecare/internal/domain/appointment"
	"github.com/telecare/telecare/internal/domain/chat"
	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/domain/notification"
	"github.com/telecare/telecare/internal/domain/pharmacy"
	"github.com/telecare/telecare/internal/domain/prescription"
	"github.com/telecare/telecare/internal/domain/records"
	"github.com/telecare/telecare/internal/domain/sos"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/middleware"
	"github.com/telecare/telecare/internal/platform/telemetry"
	"github.com/telecare/telecare/internal/platform/websocket"
)

const (
	bodyLimit       = "2M"
	shutdownTimeout = 10 * time.Second
)

// server holds the routed Echo instance and the background pieces that
// need stopping on shutdown.
type server struct {
	e       *echo.Echo
	hub     *websocket.Hub
	broker  *websocket.RedisBroker
	limiter *middleware.RateLimiter
}

// newServer wires every repository, service and handler. rdb may be nil, in
// which case events stay inside this process and rate limits are local.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client) *server {
	s := &server{hub: websocket.NewHub(logger)}

	var relay websocket.EventPublisher = s.hub
	if rdb != nil {
		s.broker = websocket.NewRedisBroker(rdb, s.hub, cfg.RelayChannel, logger)
		relay = s.broker
	}

	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	tx := db.NewTxManager(pool)

	users := identity.NewRepoPG(pool)
	notes := notification.NewRepoPG(pool)
	appts := appointment.NewRepoPG(pool)

	identitySvc := identity.NewService(users, issuer)
	notificationSvc := notification.NewService(notes)
	appointmentSvc := appointment.NewService(tx, appts, users, notes, relay, logger)
	sosSvc := sos.NewService(tx, sos.NewRepoPG(pool), users, notes, relay, logger)
	chatSvc := chat.NewService(chat.NewRepoPG(pool), users, relay, logger)
	prescriptionSvc := prescription.NewService(tx, prescription.NewRepoPG(pool), users, appts, notes, relay, logger)
	recordsSvc := records.NewService(records.NewRepoPG(pool), users, logger)
	pharmacySvc := pharmacy.NewService(pharmacy.NewRepoPG(pool), logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		ExposeHeaders:    []string{echo.HeaderXRequestID, telemetry.TraceHeader},
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	e.Use(auth.JWTMiddleware(issuer, auth.AuthSkipper))
	e.Use(telemetry.Middleware())
	e.Use(middleware.Audit(logger))
	e.Use(middleware.Sanitize(logger))

	// Health
	e.GET("/health", func(c echo.Context) error {
		body := map[string]any{"status": "ok", "websocket_clients": s.hub.ClientCount()}
		if s.broker != nil {
			relayStatus := "ok"
			if err := s.broker.Ping(c.Request().Context()); err != nil {
				relayStatus = "unavailable"
			}
			body["relay"] = relayStatus
		}
		return c.JSON(http.StatusOK, body)
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API v1, rate limited per client IP
	api := e.Group("/api/v1")
	var authLimit echo.MiddlewareFunc
	if rdb != nil {
		api.Use(middleware.NewRedisRateLimiter(rdb, int(cfg.RateLimitRPS*60), time.Minute, "telecare:rl:api").Middleware(logger, true))
		authLimit = middleware.NewRedisRateLimiter(rdb, 10, time.Minute, "telecare:rl:auth").Middleware(logger, true)
	} else {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		})
		api.Use(s.limiter.Middleware())
		authLimit = middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: 0.2, BurstSize: 10})
	}

	identity.NewHandler(identitySvc).RegisterRoutes(api, authLimit)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(api)
	sos.NewHandler(sosSvc).RegisterRoutes(api)
	notification.NewHandler(notificationSvc).RegisterRoutes(api)
	chat.NewHandler(chatSvc).RegisterRoutes(api)
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(api)
	records.NewHandler(recordsSvc).RegisterRoutes(api)
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(api)

	// Realtime
	websocket.NewHandler(s.hub, chatSvc, cfg.CORSOrigins, logger).RegisterRoutes(e)

	s.e = e
	return s
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis relay
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Str("channel", cfg.RelayChannel).Msg("connected to redis relay")
	}

	s := newServer(cfg, logger, pool, rdb)
	if s.broker != nil {
		if err := s.broker.Run(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe to relay channel")
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(s.e, "telecare"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("env", cfg.Env).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	cancel()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
