package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/ensemble"
)

// ExtractRequest is the body of POST /api/v1/extract.
type ExtractRequest struct {
	ChapterText string `json:"chapter_text"`
	Language    string `json:"language" binding:"required"`
	Mode        string `json:"mode"`
	// DeadlineMS overrides the default job deadline.
	DeadlineMS    int      `json:"deadline_ms" binding:"gte=0"`
	MinConfidence *float64 `json:"min_confidence"`
	QualityTarget string   `json:"quality_target"`
	// LoadSignal overrides the in-flight load estimate, in [0,1].
	LoadSignal *float64 `json:"load_signal"`
}

// ExtractResponse is a successful extraction.
type ExtractResponse struct {
	Descriptions []domain.Description `json:"descriptions"`
	Report       ensemble.JobReport   `json:"report"`
}

// ErrorResponse describes a failed job.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	JobID    string            `json:"job_id,omitempty"`
	Failures []FailureResponse `json:"failures,omitempty"`
}

// FailureResponse is one engine's contribution to a failed job.
type FailureResponse struct {
	Processor string `json:"processor"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
}

// BatchExtractRequest is the body of POST /api/v1/extract/batch.
type BatchExtractRequest struct {
	Jobs []ExtractRequest `json:"jobs" binding:"required,min=1,max=100,dive"`
}

// BatchItemResponse is one job of a batch, at its request index.
type BatchItemResponse struct {
	Index        int                  `json:"index"`
	Descriptions []domain.Description `json:"descriptions,omitempty"`
	Report       ensemble.JobReport   `json:"report"`
	Error        *ErrorResponse       `json:"error,omitempty"`
}

// BatchExtractResponse summarises a batch.
type BatchExtractResponse struct {
	Results []BatchItemResponse `json:"results"`
	Total   int                 `json:"total"`
	Success int                 `json:"success"`
	Failed  int                 `json:"failed"`
}

// toJob converts a request, applying the configured default min confidence.
func toJob(req ExtractRequest, defaultMinConfidence float64) domain.ProcessingJob {
	minConfidence := defaultMinConfidence
	if req.MinConfidence != nil {
		minConfidence = *req.MinConfidence
	}
	return domain.ProcessingJob{
		ChapterText:   req.ChapterText,
		Language:      req.Language,
		Mode:          domain.Mode(req.Mode),
		Deadline:      time.Duration(req.DeadlineMS) * time.Millisecond,
		MinConfidence: minConfidence,
		QualityTarget: domain.QualityTarget(req.QualityTarget),
		LoadSignal:    req.LoadSignal,
	}
}

// toErrorResponse maps a job error onto a status code and body.
func toErrorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error(), Code: domain.FailureReason(err)}

	var extErr *domain.ExtractionError
	if errors.As(err, &extErr) {
		resp.JobID = extErr.JobID
		resp.Code = domain.FailureReason(extErr.Kind)
		for _, f := range extErr.Failures {
			resp.Failures = append(resp.Failures, FailureResponse{
				Processor: f.Processor,
				Reason:    domain.FailureReason(f),
				Error:     f.Error(),
			})
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidJob):
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrUnsupportedLanguage):
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrAllEnginesFailed):
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499
