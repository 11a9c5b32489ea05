package remote

// acquireRequest is the body of POST /api/v1/locks/acquire.
type acquireRequest struct {
	Key             string `json:"key"`
	RoutingKey      string `json:"routing_key,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

// releaseRequest is the body of POST /api/v1/locks/release.
type releaseRequest struct {
	Key        string `json:"key"`
	RoutingKey string `json:"routing_key,omitempty"`
}

// statusResponse is the body returned by GET /api/v1/locks/status.
type statusResponse struct {
	Key    string `json:"key"`
	Locked bool   `json:"locked"`
}

// errorResponse is lockd's error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
