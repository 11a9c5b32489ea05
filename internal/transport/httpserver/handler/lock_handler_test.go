package handler

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"lock-service/pkg/locker"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind locker.Kind
		want int
	}{
		{locker.KindInvalidParameters, fiber.StatusBadRequest},
		{locker.KindAlreadyHeld, fiber.StatusConflict},
		{locker.KindTimeout, fiber.StatusConflict},
		{locker.KindBackendUnavailable, fiber.StatusServiceUnavailable},
		{locker.KindCanceled, fiber.StatusRequestTimeout},
		{locker.KindUnknown, fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForKind(tt.kind))
		})
	}
}
