package api

import "github.com/datastream/datastream/server/internal/ws"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	GeneratedAt string `json:"generated_at"`
}

// SessionsResponse is the payload for GET /api/v1/sessions.
type SessionsResponse struct {
	Count    int              `json:"count"`
	Sessions []ws.SessionInfo `json:"sessions"`
}

// BroadcastResponse is the payload for POST /api/v1/broadcast.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// errorResponse is returned for all 4xx/5xx errors.
type errorResponse struct {
	Error string `json:"error"`
}
