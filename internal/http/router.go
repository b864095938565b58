// Package httpapi wires the operational HTTP surface (Gin) to the backbone:
// the health probe and Prometheus metrics, behind the shared observability
// middleware. The business platform's public API lives elsewhere; this
// surface exists for load balancers and ops tooling only.
//
// Middleware order:
//  1. RequestID: generate/propagate correlation id
//  2. Logger: structured access logs
//  3. Recovery: capture panics after logger
//  4. Metrics
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tbourn/go-platform-core/internal/http/handlers"
	"github.com/tbourn/go-platform-core/internal/http/middleware"
)

// RegisterRoutes attaches middleware and the operational endpoints to the
// given Gin engine.
func RegisterRoutes(r *gin.Engine, health handlers.HealthSource) {
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	hh := handlers.NewHealthHandler(health)
	r.GET("/healthz", hh.Get)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
