// Package sidecar adapts the out-of-process NER service to the engine pool.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/mltransport"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors"
)

// Name is the processor id.
const Name = "sidecar"

const (
	defaultVersion    = "remote"
	estimatedMemoryMB = 1200
	typicalLatency    = 250 * time.Millisecond
)

// Labels maps the sidecar's NER tags onto canonical categories. ORG, DATE and
// the numeric tags carry nothing illustratable and are dropped.
var Labels = processors.LabelMap{
	"PERSON":      domain.CategoryCharacter,
	"PER":         domain.CategoryCharacter,
	"LOC":         domain.CategoryLocation,
	"GPE":         domain.CategoryLocation,
	"FAC":         domain.CategoryLocation,
	"PRODUCT":     domain.CategoryObject,
	"WORK_OF_ART": domain.CategoryObject,
	"EVENT":       domain.CategoryAction,
	"ATMOSPHERE":  domain.CategoryAtmosphere,
}

// Config locates the sidecar.
type Config struct {
	URL          string        `env:"EXTRACTOR_SIDECAR_URL" yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	ModelVersion string        `yaml:"model_version"`
}

// Profile describes the sidecar engine for the pool.
func Profile(cfg Config) engine.Profile {
	version := cfg.ModelVersion
	if version == "" {
		version = defaultVersion
	}
	return engine.Profile{
		Name:           Name,
		Version:        version,
		MemoryMB:       estimatedMemoryMB,
		TypicalLatency: typicalLatency,
	}
}

// Model is a client for one sidecar endpoint.
type Model struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// Loader connects to the sidecar and verifies it answers /health.
func Loader(cfg Config, log logger.Logger) engine.Loader {
	return func(ctx context.Context) (engine.Model, error) {
		if cfg.URL == "" {
			return nil, errors.New("sidecar url not configured")
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = mltransport.DefaultTimeout
		}
		m := &Model{
			baseURL: cfg.URL,
			client:  &http.Client{Timeout: timeout},
			logger:  log,
		}
		if err := m.Health(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Detect posts text to the sidecar and converts its code point offsets to bytes.
func (m *Model) Detect(ctx context.Context, text, lang string) ([]engine.Mention, error) {
	req := &mltransport.ExtractRequest{Text: text, Language: lang}
	var resp mltransport.ExtractResponse

	latencyMs, size, err := mltransport.DoExtract(ctx, m.client, m.baseURL, req, &resp)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Sidecar extract",
		logger.Int64("latency_ms", latencyMs),
		logger.Int("response_bytes", size),
		logger.Int("entities", len(resp.Entities)),
		logger.String("model_version", resp.ModelVersion),
	)

	offsets := runeOffsets(text)
	mentions := make([]engine.Mention, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		if e.Start < 0 || e.End > len(offsets)-1 || e.Start >= e.End {
			continue
		}
		mentions = append(mentions, engine.Mention{
			Start:    offsets[e.Start],
			End:      offsets[e.End],
			Label:    e.Label,
			Score:    e.Score,
			Metadata: map[string]string{"model_version": resp.ModelVersion},
		})
	}
	return mentions, nil
}

// runeOffsets maps code point index i to its byte offset; the final entry is len(text).
func runeOffsets(text string) []int {
	out := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		out = append(out, i)
	}
	return append(out, len(text))
}

// Health calls the sidecar's /health endpoint.
func (m *Model) Health(ctx context.Context) error {
	reachable, latencyMs, version, err := mltransport.DoHealth(ctx, m.client, m.baseURL)
	if err != nil {
		return err
	}
	if !reachable {
		return fmt.Errorf("sidecar at %s unreachable", m.baseURL)
	}
	m.logger.Debug("Sidecar healthy",
		logger.Int64("latency_ms", latencyMs),
		logger.String("model_version", version),
	)
	return nil
}

// Close releases idle connections.
func (m *Model) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// Adapter is the sidecar ProcessorAdapter.
type Adapter struct {
	processors.HandleAdapter
}

// NewAdapter wraps the pool's sidecar handle.
func NewAdapter(h *engine.Handle) *Adapter {
	return &Adapter{HandleAdapter: processors.NewHandleAdapter(h, Labels)}
}
