package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/config"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/server"
)

const (
	defaultReadTimeout = 30 * time.Second
	defaultIdleTimeout = 120 * time.Second
	// writeSlack covers encoding after a job runs to its deadline.
	writeSlack = 15 * time.Second
)

// ServerDeps are the optional extras wired into the HTTP server.
type ServerDeps struct {
	Metrics   http.Handler
	RedisPing func() error
}

// NewServer builds the HTTP server for the extractor.
func NewServer(handler *Handler, cfg *config.Config, log logger.Logger, deps ServerDeps) *server.Server {
	b := server.NewBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, cfg.Extraction.Deadline+writeSlack, defaultIdleTimeout).
		WithShutdownTimeout(cfg.Service.ShutdownTimeout).
		WithHealthCheck("engines", handler.EnginesHealth).
		WithRoutes(func(router *gin.Engine) {
			SetupServiceRoutes(router, handler, deps.Metrics)
		})
	if deps.RedisPing != nil {
		b = b.WithHealthCheck("redis", server.RedisHealthChecker(deps.RedisPing))
	}
	return b.Build()
}
