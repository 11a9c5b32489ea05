package dto

import (
	"time"

	"lock-service/internal/app/service"
)

// AcquireResponse describes an acquired lock.
type AcquireResponse struct {
	Key             string `json:"key"`
	RoutingKey      string `json:"routing_key,omitempty"`
	Shard           string `json:"shard"`
	DurationSeconds int    `json:"duration_seconds"`
	ExpiresAt       string `json:"expires_at"`
}

// FromAcquireResult converts service.AcquireResult to AcquireResponse.
func FromAcquireResult(r *service.AcquireResult) AcquireResponse {
	return AcquireResponse{
		Key:             r.Key,
		RoutingKey:      r.RoutingKey,
		Shard:           r.Shard,
		DurationSeconds: int(r.Duration / time.Second),
		ExpiresAt:       r.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

// StatusResponse reports whether a key is held.
type StatusResponse struct {
	Key        string `json:"key"`
	RoutingKey string `json:"routing_key,omitempty"`
	Shard      string `json:"shard"`
	Locked     bool   `json:"locked"`
}

// FromLockStatus converts service.LockStatus to StatusResponse.
func FromLockStatus(s *service.LockStatus) StatusResponse {
	return StatusResponse{
		Key:        s.Key,
		RoutingKey: s.RoutingKey,
		Shard:      s.Shard,
		Locked:     s.Locked,
	}
}

// ShardResponse describes one shard.
type ShardResponse struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Breaker string `json:"breaker,omitempty"`
}

// ShardsResponse lists the configured shards.
type ShardsResponse struct {
	Default string          `json:"default"`
	Shards  []ShardResponse `json:"shards"`
}

// FromShards converts the service shard listing to ShardsResponse.
func FromShards(def string, infos []service.ShardInfo) ShardsResponse {
	resp := ShardsResponse{
		Default: def,
		Shards:  make([]ShardResponse, len(infos)),
	}
	for i, info := range infos {
		resp.Shards[i] = ShardResponse{
			Name:    info.Name,
			Type:    info.Type,
			Breaker: info.Breaker,
		}
	}

	return resp
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}
