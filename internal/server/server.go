// Package server exposes the approval workflow over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"secmaster/internal/authz"
	"secmaster/internal/bootstrap"
	"secmaster/internal/config"
	"secmaster/internal/directory"
	"secmaster/internal/featureflags"
	"secmaster/internal/middleware"
	"secmaster/internal/models"
	"secmaster/internal/notifications"
	"secmaster/internal/observability"
	"secmaster/internal/service"
	"secmaster/internal/workflow"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	dispatcher     *workflow.Dispatcher
	directory      *directory.Directory
	featureFlags   *featureflags.Manager
	services       *service.Services
	actions        *service.ActionService
}

// NewServer connects to the database and Redis and wires the server on top.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil, in which case notifications go to the log and the
// websocket endpoint is unavailable.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("server: database is required")
	}
	middleware.InitMiddleware(cfg)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("secmaster-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		directory:      directory.New(directorySource(cfg, db), cfg.UserDirectoryTTL()),
	}

	var sink notifications.Sink = notifications.LogSink{}
	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient, cfg.MailOutboxKey)
		s.hub = notifications.NewHub()
		sink = s.notifier
	}
	s.dispatcher = workflow.NewDispatcher(sink, s.directory, cfg.NotificationTimeout())

	engines := service.NewEngines(db, s.dispatcher)
	bypass := authz.NewRolePredicate(db, cfg.BypassRole)
	s.services = service.NewServices(engines, bypass, s.directory)
	s.actions = service.NewActionService(workflow.NewActions(db, s.dispatcher, engines.ActionTargets()...), bypass)
	return s, nil
}

// directorySource prefers the remote user service and falls back to the
// local users table.
func directorySource(cfg *config.Config, db *gorm.DB) directory.Source {
	if cfg.UserDirectoryURL != "" {
		timeout := time.Duration(cfg.UserDirectoryTimeoutSec) * time.Second
		return directory.NewHTTPSource(cfg.UserDirectoryURL, cfg.UserDirectoryToken, cfg.UserDirectoryPageSize, timeout)
	}
	return directory.NewDBSource(db, cfg.UserDirectoryPageSize)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Propagate request, trace and correlation ids into the user context.
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Correlation-ID, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		ExposeHeaders:    "X-Request-ID, X-Trace-ID, X-Correlation-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// The websocket group authenticates from the query string, so it is
	// registered before the bearer-only API group.
	ws := app.Group("/api/ws", middleware.WebSocketAuthRequired, s.FlagRequired(featureflags.LiveNotifications))
	ws.Get("/", s.WebsocketHandler())

	api := app.Group("/api", middleware.AuthRequired)
	api.Get("/feature-flags", s.GetFeatureFlags)

	proposals := s.proposalLimit()
	mountKind(api, "/securities", s.services.Securities, proposals)
	mountKind(api, "/auction-results", s.services.AuctionResults, proposals)
	mountKind(api, "/market-categories", s.services.MarketCategories, proposals)
	mountKind(api, "/product-types", s.services.ProductTypes, proposals)
	mountKind(api, "/security-types", s.services.SecurityTypes, proposals)
	mountKind(api, "/users", s.services.Users, proposals)

	actions := api.Group("/pending-actions", s.FlagRequired(featureflags.PendingActions))
	actions.Get("/", s.ListPendingActions)
	actions.Post("/", proposals, s.ProposePendingAction)
	actions.Post("/:id/approve", s.ApprovePendingAction)
	actions.Post("/:id/reject", s.RejectPendingAction)
	actions.Get("/:id", s.GetPendingAction)
}

// proposalLimit throttles mutation requests per actor. A zero limit turns it off.
func (s *Server) proposalLimit() fiber.Handler {
	if s.config.ProposalRateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.redis, s.config.ProposalRateLimit, time.Minute, "proposal")
}

// FlagRequired hides a route group behind a feature flag. Disabled routes
// answer 404 as if they did not exist.
func (s *Server) FlagRequired(flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.featureFlags == nil || !s.featureFlags.Enabled(flag, middleware.ActorID(c)) {
			return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Route", c.Path()))
		}
		return c.Next()
	}
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional; only a
// configured but unreachable Redis fails readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// newApp builds the fiber app with middleware and routes but does not listen.
func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Security Master API",
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return models.RespondWithError(c, fe.Code, err)
	}
	observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.newApp()

	if s.notifier != nil && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				observability.Logger.Error("failed to start notification wiring", slog.String("error", err.Error()))
			}
		}()
	}

	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, drains pending notifications and
// closes the connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.dispatcher.Wait(ctx); err != nil {
		observability.Logger.Warn("notifications still in flight at shutdown", slog.String("error", err.Error()))
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			observability.Logger.Error("error shutting down notification hub", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			return fmt.Errorf("close database: %w", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			return fmt.Errorf("close redis: %w", rerr)
		}
	}

	observability.Logger.Info("server shutdown complete")
	return nil
}
