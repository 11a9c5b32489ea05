// Package handler provides HTTP handlers for the API.
package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"lock-service/internal/app/service"
	"lock-service/internal/transport/httpserver/dto"
	"lock-service/internal/validator"
	"lock-service/pkg/locker"
)

// LockHandler handles lock-related HTTP requests.
type LockHandler struct {
	service   *service.LockService
	validator *validator.Validator
	logger    *zap.Logger
}

// NewLockHandler creates a new LockHandler.
func NewLockHandler(svc *service.LockService, v *validator.Validator, logger *zap.Logger) *LockHandler {
	return &LockHandler{
		service:   svc,
		validator: v,
		logger:    logger,
	}
}

// Acquire handles POST /api/v1/locks/acquire
func (h *LockHandler) Acquire(c *fiber.Ctx) error {
	var req dto.AcquireRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.validator.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	result, err := h.service.Acquire(c.Context(), req.ToAcquireParams())
	if err != nil {
		return h.lockError(c, "acquire", req.Key, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.FromAcquireResult(result))
}

// Release handles POST /api/v1/locks/release
func (h *LockHandler) Release(c *fiber.Ctx) error {
	var req dto.ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.validator.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.service.Release(c.Context(), req.Key, req.RoutingKey); err != nil {
		return h.lockError(c, "release", req.Key, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Status handles GET /api/v1/locks/status
func (h *LockHandler) Status(c *fiber.Ctx) error {
	var req dto.StatusRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
	}

	if err := h.validator.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	status, err := h.service.Status(c.Context(), req.Key, req.RoutingKey)
	if err != nil {
		return h.lockError(c, "status", req.Key, err)
	}

	return c.JSON(dto.FromLockStatus(status))
}

// Shards handles GET /api/v1/shards
func (h *LockHandler) Shards(c *fiber.Ctx) error {
	def, infos := h.service.Shards()
	return c.JSON(dto.FromShards(def, infos))
}

// lockError writes the response for an error returned by a lock operation.
func (h *LockHandler) lockError(c *fiber.Ctx, op, key string, err error) error {
	kind := locker.KindOf(err)
	status := StatusForKind(kind)

	switch {
	case status >= fiber.StatusInternalServerError:
		h.logger.Error("lock operation failed",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err),
		)
	case kind == locker.KindBackendUnavailable:
		h.logger.Warn("lock backend unavailable",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return c.Status(status).JSON(dto.ErrorResponse{
		Error: err.Error(),
		Code:  kind.String(),
	})
}

// StatusForKind maps a lock error kind to an HTTP status code.
func StatusForKind(kind locker.Kind) int {
	switch kind {
	case locker.KindInvalidParameters:
		return fiber.StatusBadRequest
	case locker.KindAlreadyHeld, locker.KindTimeout:
		return fiber.StatusConflict
	case locker.KindBackendUnavailable:
		return fiber.StatusServiceUnavailable
	case locker.KindCanceled:
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: "invalid request body",
		Code:  "INVALID_REQUEST",
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:   "validation failed",
		Code:    locker.KindInvalidParameters.String(),
		Details: err,
	})
}
