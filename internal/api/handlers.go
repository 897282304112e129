package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/ensemble"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/server"
)

// Extractor runs extraction jobs.
type Extractor interface {
	ExtractDescriptions(ctx context.Context, job domain.ProcessingJob) (ensemble.Result, error)
	ExtractForChapters(ctx context.Context, jobs []domain.ProcessingJob) []ensemble.BatchResult
}

// EngineLister reports engine state.
type EngineLister interface {
	Status() []engine.Status
}

// Handler handles HTTP requests for the extractor API.
type Handler struct {
	extractor            Extractor
	engines              EngineLister
	defaultMinConfidence float64
	logger               logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(extractor Extractor, engines EngineLister, defaultMinConfidence float64, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		extractor:            extractor,
		engines:              engines,
		defaultMinConfidence: defaultMinConfidence,
		logger:               log,
	}
}

// Extract handles POST /api/v1/extract
func (h *Handler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid extraction request", logger.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}

	res, err := h.extractor.ExtractDescriptions(c.Request.Context(), toJob(req, h.defaultMinConfidence))
	if err != nil {
		status, body := toErrorResponse(err)
		_ = c.Error(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, ExtractResponse{Descriptions: res.Descriptions, Report: res.Report})
}

// ExtractBatch handles POST /api/v1/extract/batch
func (h *Handler) ExtractBatch(c *gin.Context) {
	var req BatchExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid batch request", logger.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
		return
	}

	jobs := make([]domain.ProcessingJob, len(req.Jobs))
	for i, r := range req.Jobs {
		jobs[i] = toJob(r, h.defaultMinConfidence)
	}

	results := h.extractor.ExtractForChapters(c.Request.Context(), jobs)
	resp := BatchExtractResponse{Results: make([]BatchItemResponse, len(results)), Total: len(results)}
	for i, r := range results {
		item := BatchItemResponse{Index: r.Index, Report: r.Result.Report}
		if r.Err != nil {
			_, body := toErrorResponse(r.Err)
			item.Error = &body
			resp.Failed++
		} else {
			item.Descriptions = r.Result.Descriptions
			resp.Success++
		}
		resp.Results[i] = item
	}

	h.logger.Info("Batch extraction completed",
		logger.Int("total", resp.Total),
		logger.Int("success", resp.Success),
		logger.Int("failed", resp.Failed),
	)
	c.JSON(http.StatusOK, resp)
}

// ListEngines handles GET /api/v1/engines
func (h *Handler) ListEngines(c *gin.Context) {
	statuses := h.engines.Status()
	c.JSON(http.StatusOK, gin.H{
		"engines": statuses,
		"total":   len(statuses),
	})
}

// EnginesHealth is unhealthy when no engine admits calls and degraded when
// only some do.
func (h *Handler) EnginesHealth() server.CheckResult {
	statuses := h.engines.Status()
	available := 0
	for _, s := range statuses {
		if s.Available {
			available++
		}
	}
	switch {
	case available == 0:
		return server.CheckResult{Status: server.HealthStatusUnhealthy, Message: "no engine available"}
	case available < len(statuses):
		return server.CheckResult{
			Status:  server.HealthStatusDegraded,
			Message: fmt.Sprintf("%d of %d engines available", available, len(statuses)),
		}
	default:
		return server.CheckResult{Status: server.HealthStatusHealthy}
	}
}
