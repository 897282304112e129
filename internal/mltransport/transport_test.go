package mltransport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/mltransport"
)

func TestDoExtract_ReturnsLatencyAndSize(t *testing.T) {
	want := mltransport.ExtractResponse{
		ModelVersion: "ner-3",
		Entities:     []mltransport.Entity{{Start: 0, End: 4, Label: "PERSON", Score: 0.91}},
	}
	respBody, marshalErr := json.Marshal(want)
	if marshalErr != nil {
		t.Fatalf("marshal test response: %v", marshalErr)
	}

	var gotReq mltransport.ExtractRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&gotReq); decodeErr != nil {
			t.Errorf("decode request: %v", decodeErr)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, writeErr := w.Write(respBody); writeErr != nil {
			t.Errorf("write response: %v", writeErr)
		}
	}))
	defer srv.Close()

	req := &mltransport.ExtractRequest{Text: "John ran.", Language: "en"}
	var got mltransport.ExtractResponse

	latencyMs, responseSizeBytes, err := mltransport.DoExtract(context.Background(), nil, srv.URL, req, &got)
	if err != nil {
		t.Fatalf("DoExtract returned unexpected error: %v", err)
	}
	if latencyMs < 0 {
		t.Errorf("expected latencyMs >= 0, got %d", latencyMs)
	}
	if responseSizeBytes != len(respBody) {
		t.Errorf("expected responseSizeBytes=%d, got %d", len(respBody), responseSizeBytes)
	}
	if gotReq.Language != "en" || gotReq.Text != "John ran." {
		t.Errorf("unexpected request body %+v", gotReq)
	}
	if got.ModelVersion != "ner-3" || len(got.Entities) != 1 || got.Entities[0].Label != "PERSON" {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestDoExtract_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		if _, writeErr := w.Write([]byte("internal error")); writeErr != nil {
			t.Errorf("write response: %v", writeErr)
		}
	}))
	defer srv.Close()

	var got mltransport.ExtractResponse
	latencyMs, _, err := mltransport.DoExtract(context.Background(), nil, srv.URL, &mltransport.ExtractRequest{}, &got)

	var statusErr *mltransport.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status error 500, got %v", err)
	}
	if latencyMs < 0 {
		t.Errorf("expected latencyMs >= 0 even on error, got %d", latencyMs)
	}
}

func TestDoHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"model_version":"ner-3"}`))
	}))
	defer srv.Close()

	reachable, _, version, err := mltransport.DoHealth(context.Background(), nil, srv.URL)
	if err != nil || !reachable {
		t.Fatalf("expected healthy sidecar, got reachable=%v err=%v", reachable, err)
	}
	if version != "ner-3" {
		t.Errorf("model version = %q", version)
	}
}

func TestDoHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	reachable, _, _, err := mltransport.DoHealth(context.Background(), nil, url)
	if err == nil || reachable {
		t.Errorf("expected unreachable, got reachable=%v err=%v", reachable, err)
	}
}
