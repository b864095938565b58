// Package handlers – health probe
//
// This file exposes the backlog/health monitor's latest snapshot as the
// /healthz probe consumed by load balancers and ops tooling. The endpoint
// always answers 200 with a status field ("ok" or "warning"): a warning means
// derived state is drifting stale, not that this process is unable to serve,
// so it must not take the instance out of rotation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-platform-core/internal/monitor"
)

// HealthSource yields the latest backlog snapshot without touching storage.
type HealthSource interface {
	Health() monitor.Health
}

// HealthHandler serves the monitor probe.
type HealthHandler struct {
	source HealthSource
}

// NewHealthHandler builds the handler.
func NewHealthHandler(source HealthSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// Get returns the probe snapshot:
// {pendingCount, oldestPendingAgeSecs, published24h, status, ...}.
func (h *HealthHandler) Get(c *gin.Context) {
	ok(c, http.StatusOK, h.source.Health())
}
