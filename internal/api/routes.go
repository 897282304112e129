package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupServiceRoutes configures the extractor routes. Health routes are added
// by the server builder.
func SetupServiceRoutes(router *gin.Engine, handler *Handler, metrics http.Handler) {
	v1 := router.Group("/api/v1")

	extract := v1.Group("/extract")
	extract.POST("", handler.Extract)           // POST /api/v1/extract
	extract.POST("/batch", handler.ExtractBatch) // POST /api/v1/extract/batch

	v1.GET("/engines", handler.ListEngines) // GET /api/v1/engines

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
}
