package rest

import (
	"yqhp/worker-fleet/pkg/controlsurface"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents a readiness check response.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Status    string `json:"status"`
	RunID     string `json:"run_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RunListResponse lists the registered runs.
type RunListResponse struct {
	Runs  []string `json:"runs"`
	Total int      `json:"total"`
}

// RunStatus is the status body of GET /status and GET /api/v1/runs/:id.
type RunStatus = controlsurface.RunStatus
