package api

import (
	"context"
	"net/http"
	"time"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type HealthHandler struct {
	postgres PingFunc
	redis    PingFunc
	env      string
	version  string
}

func NewHealthHandler(postgres, redis PingFunc, env, version string) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    redis,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func ping(ctx context.Context, fn PingFunc) bool {
	if fn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return fn(ctx) == nil
}

// Readiness reports "error" without Postgres. Without Redis bookings fail busy
// but reads still work, so the service is only "degraded" and stays in rotation.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{"postgres": "ok", "redis": "ok"}
	status := "ok"

	if !ping(ctx, h.postgres) {
		deps["postgres"] = "down"
		status = "error"
	}
	if !ping(ctx, h.redis) {
		deps["redis"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
