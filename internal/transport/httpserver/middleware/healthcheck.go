// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"go.uber.org/zap"
)

// ReadinessFunc reports whether every lock shard is reachable.
type ReadinessFunc func(ctx context.Context) error

const readinessTimeout = 2 * time.Second

// NewHealthCheck creates a Fiber healthcheck middleware with Kubernetes-style endpoints.
//
// Endpoints:
//   - GET /livez  - Liveness probe (app is running)
//   - GET /readyz - Readiness probe (every shard answers a ping)
//
// This middleware should be registered BEFORE other routes.
func NewHealthCheck(ready ReadinessFunc, logger *zap.Logger) fiber.Handler {
	return healthcheck.New(healthcheck.Config{
		// Liveness probe - is the application running?
		LivenessEndpoint: "/livez",
		LivenessProbe: func(_ *fiber.Ctx) bool {
			return true // Always return true if the app is running
		},

		// Readiness probe - is the application ready to serve traffic?
		ReadinessEndpoint: "/readyz",
		ReadinessProbe: func(_ *fiber.Ctx) bool {
			if ready == nil {
				return false
			}

			ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer cancel()

			if err := ready(ctx); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				return false
			}

			return true
		},
	})
}
