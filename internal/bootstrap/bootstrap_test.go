package bootstrap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/config"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/server"
)

const castleChapter = "Old stone castle loomed over misty hills. John walked slowly toward it."

func newComponents(t *testing.T, cfg *config.Config) *bootstrap.Components {
	t.Helper()
	cfg.Engines.ModelDir = t.TempDir()
	c, err := bootstrap.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_BuiltinEngines(t *testing.T) {
	c := newComponents(t, config.Default())

	assert.Equal(t, []string{"lexicon", "pattern"}, c.Coordinator.Processors())

	res, err := c.Coordinator.ExtractDescriptions(context.Background(), domain.ProcessingJob{
		ChapterText:   castleChapter,
		Language:      "en",
		Mode:          domain.ModeEnsemble,
		MinConfidence: c.Config.Extraction.DefaultMinConfidence(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Descriptions)

	texts := make([]string, 0, len(res.Descriptions))
	for _, d := range res.Descriptions {
		texts = append(texts, d.Text)
	}
	assert.Contains(t, texts, "misty hills")
}

func TestNew_DisabledEngines(t *testing.T) {
	cfg := config.Default()
	cfg.Engines.Disabled = []string{"lexicon", "pattern"}
	cfg.Engines.ModelDir = t.TempDir()

	_, err := bootstrap.New(context.Background(), cfg, logger.NewNop())
	assert.ErrorIs(t, err, bootstrap.ErrNoEngines)
}

func TestNew_CacheDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Disabled = true
	c := newComponents(t, cfg)
	assert.Nil(t, c.Cache)
}

func TestHTTPServer_HealthWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Cache.Redis.Address = mr.Addr()
	c := newComponents(t, cfg)

	srv := c.HTTPServer()
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp server.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, server.HealthStatusHealthy, resp.Checks["redis"].Status)
	assert.Contains(t, resp.Checks, "engines")

	mr.Close()
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, server.HealthStatusDegraded, resp.Status)
}

func TestNew_UnreachableRedisFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Redis.Address = "127.0.0.1:1"
	c := newComponents(t, cfg)
	require.NotNil(t, c.Cache)

	srv := c.HTTPServer()
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	var resp server.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Checks, "redis")
}
