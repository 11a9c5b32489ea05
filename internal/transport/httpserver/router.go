// Package httpserver provides HTTP server and routing.
package httpserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lock-service/internal/app/service"
	"lock-service/internal/transport/httpserver/dto"
	"lock-service/internal/transport/httpserver/handler"
	"lock-service/internal/transport/httpserver/middleware"
	"lock-service/internal/validator"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name      string
	BodyLimit int
}

// Server wraps Fiber app with handlers.
type Server struct {
	App    *fiber.App
	Logger *zap.Logger
}

// NewServer creates a new HTTP server with all routes configured.
// Request metrics are registered with reg and /metrics serves reg.
func NewServer(
	cfg ServerConfig,
	lockSvc *service.LockService,
	v *validator.Validator,
	reg *prometheus.Registry,
	logger *zap.Logger,
) (*Server, error) {
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering http metrics: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "lockd"
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               name,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: true,
	})

	// Health check middleware MUST be registered BEFORE other middleware
	// for Kubernetes probes to work even during high load
	app.Use(middleware.NewHealthCheck(lockSvc.Ready, logger))

	// Global middleware
	app.Use(requestid.New())
	app.Use(middleware.Recover(logger))
	app.Use(middleware.Logger(logger))
	app.Use(middleware.Metrics(httpMetrics))

	// Create handlers
	lockHandler := handler.NewLockHandler(lockSvc, v, logger)

	// Register routes
	registerRoutes(app, lockHandler, reg)

	return &Server{
		App:    app,
		Logger: logger,
	}, nil
}

// registerRoutes sets up all API routes.
func registerRoutes(app *fiber.App, lockHandler *handler.LockHandler, reg prometheus.Gatherer) {
	// Health checks are handled by middleware (/livez, /readyz)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := app.Group("/api/v1")

	// Locks
	locks := v1.Group("/locks")
	locks.Post("/acquire", lockHandler.Acquire)
	locks.Post("/release", lockHandler.Release)
	locks.Get("/status", lockHandler.Status)

	// Shards
	v1.Get("/shards", lockHandler.Shards)
}

// errorHandler returns a custom error handler that logs based on HTTP status code.
// 404s are logged at DEBUG level (expected client behavior), 4xx at WARN, 5xx at ERROR.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errCode := "INTERNAL_ERROR"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			errCode = "HTTP_ERROR"
		}

		// Log based on status code - 404s are common and not server errors
		switch {
		case code == fiber.StatusNotFound:
			errCode = "NOT_FOUND"
			logger.Debug("resource not found",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
			)
		case code >= 500:
			logger.Error("server error",
				zap.Error(err),
				zap.Int("status", code),
				zap.String("path", c.Path()),
			)
		default:
			logger.Warn("client error",
				zap.Error(err),
				zap.Int("status", code),
				zap.String("path", c.Path()),
			)
		}

		return c.Status(code).JSON(dto.ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
	}
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	s.Logger.Info("starting HTTP server", zap.Int("port", port))

	return s.App.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully shuts down the server, waiting up to timeout for
// in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.Logger.Info("shutting down HTTP server")

	return s.App.ShutdownWithTimeout(timeout)
}
