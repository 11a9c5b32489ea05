// Package dto provides Data Transfer Objects for HTTP requests and responses.
package dto

import (
	"time"

	"lock-service/internal/app/service"
)

// AcquireRequest is the body of POST /api/v1/locks/acquire.
type AcquireRequest struct {
	Key             string `json:"key" validate:"required,max=512,lockkey"`
	RoutingKey      string `json:"routing_key" validate:"max=512,lockkey"`
	DurationSeconds int    `json:"duration_seconds" validate:"min=1"`

	// Wait retries contention server-side using the configured retry policy.
	Wait bool `json:"wait"`
}

// ToAcquireParams converts the request to service parameters.
func (r *AcquireRequest) ToAcquireParams() service.AcquireParams {
	return service.AcquireParams{
		Key:        r.Key,
		RoutingKey: r.RoutingKey,
		Duration:   time.Duration(r.DurationSeconds) * time.Second,
		Wait:       r.Wait,
	}
}

// ReleaseRequest is the body of POST /api/v1/locks/release.
type ReleaseRequest struct {
	Key        string `json:"key" validate:"required,max=512,lockkey"`
	RoutingKey string `json:"routing_key" validate:"max=512,lockkey"`
}

// StatusRequest holds the query parameters of GET /api/v1/locks/status.
type StatusRequest struct {
	Key        string `query:"key" json:"key" validate:"required,max=512,lockkey"`
	RoutingKey string `query:"routing_key" json:"routing_key" validate:"max=512,lockkey"`
}
