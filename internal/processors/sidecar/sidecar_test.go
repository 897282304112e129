package sidecar_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/mltransport"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/sidecar"
)

func newSidecar(t *testing.T, entities []mltransport.Entity, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"model_version":"ner-test"}`))
		case "/extract":
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			_ = json.NewEncoder(w).Encode(mltransport.ExtractResponse{ModelVersion: "ner-test", Entities: entities})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter(t *testing.T, url string) *sidecar.Adapter {
	t.Helper()
	pool := engine.NewPool(engine.Config{Lazy: true}, logger.NewNop(), nil)
	cfg := sidecar.Config{URL: url, ModelVersion: "ner-test"}
	h, err := pool.Register(sidecar.Profile(cfg), sidecar.Loader(cfg, logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return sidecar.NewAdapter(h)
}

func TestExtract_ConvertsRuneOffsets(t *testing.T) {
	text := "Иван вошёл в замок."
	// Code point offsets: Иван [0,4), замок [13,18).
	srv := newSidecar(t, []mltransport.Entity{
		{Start: 0, End: 4, Label: "PER", Score: 0.93},
		{Start: 13, End: 18, Label: "LOC", Score: 0.88},
		{Start: 5, End: 10, Label: "DATE", Score: 0.5},
		{Start: 15, End: 99, Label: "LOC", Score: 0.9},
	}, http.StatusOK)

	candidates, err := newAdapter(t, srv.URL).Extract(context.Background(), text, "ru")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "Иван", candidates[0].Text)
	assert.Equal(t, domain.CategoryCharacter, candidates[0].Category)
	assert.Equal(t, "замок", candidates[1].Text)
	assert.Equal(t, domain.CategoryLocation, candidates[1].Category)
	assert.Equal(t, text[candidates[1].SpanStart:candidates[1].SpanEnd], candidates[1].Text)
	assert.Equal(t, "LOC", candidates[1].EngineMetadata["native_label"])
	assert.Equal(t, sidecar.Name, candidates[1].ProcessorID)
}

func TestExtract_ServerErrorIsEngineError(t *testing.T) {
	srv := newSidecar(t, nil, http.StatusInternalServerError)

	_, err := newAdapter(t, srv.URL).Extract(context.Background(), "John ran.", "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineError)

	var failure *domain.EngineFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, sidecar.Name, failure.Processor)
}

func TestExtract_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newAdapter(t, url).Extract(context.Background(), "John ran.", "en")
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestProfile_DefaultVersion(t *testing.T) {
	assert.Equal(t, "remote", sidecar.Profile(sidecar.Config{}).Version)
	assert.Equal(t, "v2", sidecar.Profile(sidecar.Config{ModelVersion: "v2"}).Version)
}
