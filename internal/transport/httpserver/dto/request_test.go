package dto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lock-service/internal/app/service"
	"lock-service/internal/validator"
)

func newTestValidator() *validator.Validator {
	return validator.New()
}

// TestAcquireRequest_Validation_Valid tests valid acquire requests.
func TestAcquireRequest_Validation_Valid(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name string
		req  AcquireRequest
	}{
		{
			name: "minimal valid request",
			req:  AcquireRequest{Key: "job:7", DurationSeconds: 30},
		},
		{
			name: "with routing key",
			req:  AcquireRequest{Key: "job:7", RoutingKey: "org:9", DurationSeconds: 30},
		},
		{
			name: "key at max length",
			req:  AcquireRequest{Key: strings.Repeat("k", 512), DurationSeconds: 1},
		},
		{
			name: "unicode key",
			req:  AcquireRequest{Key: "tâche:7", DurationSeconds: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			assert.NoError(t, err)
		})
	}
}

// TestAcquireRequest_Validation_Invalid tests invalid acquire requests.
func TestAcquireRequest_Validation_Invalid(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name         string
		req          AcquireRequest
		expectField  string
		expectTag    string
		expectErrMsg string
	}{
		{
			name:         "missing key",
			req:          AcquireRequest{DurationSeconds: 30},
			expectField:  "key",
			expectTag:    "required",
			expectErrMsg: "key is required",
		},
		{
			name:         "key too long",
			req:          AcquireRequest{Key: strings.Repeat("k", 513), DurationSeconds: 30},
			expectField:  "key",
			expectTag:    "max",
			expectErrMsg: "must be at most 512",
		},
		{
			name:         "key with whitespace",
			req:          AcquireRequest{Key: "job 7", DurationSeconds: 30},
			expectField:  "key",
			expectTag:    "lockkey",
			expectErrMsg: "must not contain whitespace or control characters",
		},
		{
			name:         "routing key with control character",
			req:          AcquireRequest{Key: "job:7", RoutingKey: "org\x00", DurationSeconds: 30},
			expectField:  "routing_key",
			expectTag:    "lockkey",
			expectErrMsg: "must not contain whitespace or control characters",
		},
		{
			name:         "zero duration",
			req:          AcquireRequest{Key: "job:7"},
			expectField:  "duration_seconds",
			expectTag:    "min",
			expectErrMsg: "must be at least 1",
		},
		{
			name:         "negative duration",
			req:          AcquireRequest{Key: "job:7", DurationSeconds: -1},
			expectField:  "duration_seconds",
			expectTag:    "min",
			expectErrMsg: "must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			require.Error(t, err)

			// Check that error is ValidationErrors
			validationErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "expected ValidationErrors type")
			require.NotEmpty(t, validationErrs)

			// Find the expected field error
			found := false
			for _, ve := range validationErrs {
				if ve.Field == tt.expectField {
					found = true
					assert.Equal(t, tt.expectTag, ve.Tag)
					assert.Contains(t, ve.Message, tt.expectErrMsg)
				}
			}
			assert.True(t, found, "expected error for field %s", tt.expectField)
		})
	}
}

// TestAcquireRequest_ToAcquireParams tests conversion to service parameters.
func TestAcquireRequest_ToAcquireParams(t *testing.T) {
	req := AcquireRequest{Key: "job:7", RoutingKey: "org:9", DurationSeconds: 90, Wait: true}

	assert.Equal(t, service.AcquireParams{
		Key:        "job:7",
		RoutingKey: "org:9",
		Duration:   90 * time.Second,
		Wait:       true,
	}, req.ToAcquireParams())
}

// TestReleaseRequest_Validation tests release request validation.
func TestReleaseRequest_Validation(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.Validate(&ReleaseRequest{Key: "job:7"}))
	assert.NoError(t, v.Validate(&ReleaseRequest{Key: "job:7", RoutingKey: "org:9"}))
	assert.Error(t, v.Validate(&ReleaseRequest{}))
	assert.Error(t, v.Validate(&ReleaseRequest{Key: "job:7", RoutingKey: "org 9"}))
}

// TestStatusRequest_Validation tests status query validation.
func TestStatusRequest_Validation(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.Validate(&StatusRequest{Key: "job:7"}))
	assert.Error(t, v.Validate(&StatusRequest{}))
}

// TestFromShards tests conversion of the shard listing.
func TestFromShards(t *testing.T) {
	resp := FromShards("a", []service.ShardInfo{
		{Name: "a", Type: "redis", Breaker: "closed"},
		{Name: "b", Type: "memory"},
	})

	assert.Equal(t, "a", resp.Default)
	assert.Equal(t, []ShardResponse{
		{Name: "a", Type: "redis", Breaker: "closed"},
		{Name: "b", Type: "memory"},
	}, resp.Shards)
}
