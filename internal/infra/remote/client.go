// Package remote implements locker.Backend against a lockd instance over HTTP.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"lock-service/pkg/locker"
)

// API paths served by lockd.
const (
	AcquireEndpoint = "/api/v1/locks/acquire"
	ReleaseEndpoint = "/api/v1/locks/release"
	StatusEndpoint  = "/api/v1/locks/status"
	ReadyEndpoint   = "/readyz"
)

const backendName = "remote"

// ClientConfig holds configuration for a remote lockd client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements locker.Backend by calling a lockd HTTP API.
// It never retries on its own; retrying is the Lock's retry policy's job.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

// New creates a new remote client.
func New(cfg ClientConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &Client{
		client: client,
		logger: logger,
	}
}

// Acquire implements locker.Backend.
func (c *Client) Acquire(ctx context.Context, key string, duration time.Duration, routingKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := locker.CheckDuration(duration); err != nil {
		return err
	}

	var errBody errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(acquireRequest{
			Key:             key,
			RoutingKey:      routingKey,
			DurationSeconds: int(duration / time.Second),
		}).
		SetError(&errBody).
		Post(AcquireEndpoint)
	if err != nil {
		return c.transportError(ctx, "acquire", err)
	}

	switch resp.StatusCode() {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return locker.ErrLockAlreadyHeld
	default:
		return c.statusError("acquire", resp, errBody)
	}
}

// Release implements locker.Backend.
func (c *Client) Release(ctx context.Context, key, routingKey string) error {
	var errBody errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(releaseRequest{Key: key, RoutingKey: routingKey}).
		SetError(&errBody).
		Post(ReleaseEndpoint)
	if err != nil {
		return c.transportError(ctx, "release", err)
	}

	if resp.IsSuccess() {
		return nil
	}

	return c.statusError("release", resp, errBody)
}

// Locked implements locker.Backend.
func (c *Client) Locked(ctx context.Context, key, routingKey string) (bool, error) {
	var (
		result  statusResponse
		errBody errorResponse
	)

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetResult(&result).
		SetError(&errBody)
	if routingKey != "" {
		req.SetQueryParam("routing_key", routingKey)
	}

	resp, err := req.Get(StatusEndpoint)
	if err != nil {
		return false, c.transportError(ctx, "locked", err)
	}

	if !resp.IsSuccess() {
		return false, c.statusError("locked", resp, errBody)
	}

	return result.Locked, nil
}

// Ping implements locker.Pinger using lockd's readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(ReadyEndpoint)
	if err != nil {
		return c.transportError(ctx, "ping", err)
	}
	if resp.IsError() {
		return locker.Unavailable(backendName, "ping",
			fmt.Errorf("readiness returned status %d", resp.StatusCode()))
	}

	return nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	c.logger.Warn("remote lock request failed",
		zap.String("op", op),
		zap.Error(err),
	)

	return locker.Unavailable(backendName, op, err)
}

func (c *Client) statusError(op string, resp *resty.Response, body errorResponse) error {
	msg := body.Error
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode())
	}

	if resp.StatusCode() == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", locker.ErrInvalidParameters, msg)
	}

	return locker.Unavailable(backendName, op,
		fmt.Errorf("lockd returned status %d: %s", resp.StatusCode(), msg))
}
