// Package mltransport provides the HTTP transport for the NER sidecar's
// extract and health endpoints.
package mltransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout applies when no client is supplied.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps a sidecar response body.
const maxResponseBytes = 16 << 20

// ExtractRequest is the request body for POST /extract.
type ExtractRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Entity is one sidecar span. Offsets count Unicode code points.
type Entity struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ExtractResponse is the body returned by POST /extract.
type ExtractResponse struct {
	ModelVersion string   `json:"model_version"`
	Entities     []Entity `json:"entities"`
}

// healthResponse is the JSON shape returned by GET /health (model_version optional).
type healthResponse struct {
	ModelVersion string `json:"model_version"`
}

// StatusError is returned for a non-200 sidecar response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ml service returned %d", e.Code)
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// DoExtract sends POST /extract to baseURL and decodes the response into resp.
// It returns the call latency and response size, also on error.
func DoExtract(
	ctx context.Context, client *http.Client, baseURL string, req *ExtractRequest, resp *ExtractResponse,
) (latencyMs int64, responseSizeBytes int, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := clientOrDefault(client).Do(httpReq)
	if err != nil {
		return time.Since(start).Milliseconds(), 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	latencyMs = time.Since(start).Milliseconds()
	if readErr != nil {
		return latencyMs, len(data), fmt.Errorf("read response: %w", readErr)
	}
	if httpResp.StatusCode != http.StatusOK {
		return latencyMs, len(data), &StatusError{Code: httpResp.StatusCode}
	}

	if decodeErr := json.Unmarshal(data, resp); decodeErr != nil {
		return latencyMs, len(data), fmt.Errorf("decode response: %w", decodeErr)
	}
	return latencyMs, len(data), nil
}

// DoHealth calls GET /health at baseURL and returns reachable, latencyMs, model_version, and any error.
func DoHealth(
	ctx context.Context, client *http.Client, baseURL string,
) (reachable bool, latencyMs int64, modelVersion string, err error) {
	start := time.Now()

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", http.NoBody)
	if reqErr != nil {
		return false, 0, "", fmt.Errorf("create request: %w", reqErr)
	}

	resp, doErr := clientOrDefault(client).Do(httpReq)
	latencyMs = time.Since(start).Milliseconds()
	if doErr != nil {
		return false, latencyMs, "", fmt.Errorf("service unreachable: %w", doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, latencyMs, "", fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}

	reachable = true
	var healthResp healthResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&healthResp); decodeErr == nil {
		modelVersion = healthResp.ModelVersion
	}
	return reachable, latencyMs, modelVersion, nil
}
