// Package processors defines the adapter contract shared by every extraction
// engine and the helpers they use to normalize engine output.
package processors

import (
	"context"
	"maps"
	"math"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
)

// MetadataNativeLabel is the EngineMetadata key holding the engine's own tag.
const MetadataNativeLabel = "native_label"

// Adapter wraps one engine behind a uniform interface. Implementations hold
// their engine through an injected *engine.Handle and never load models themselves.
type Adapter interface {
	// Name is the processor id recorded on candidates.
	Name() string
	// Version identifies the loaded model; it is part of the result cache key.
	Version() string
	// Available reports whether the engine would admit a call now.
	Available() bool
	// Extract returns candidates in canonical categories. Errors are
	// *domain.EngineFailure values.
	Extract(ctx context.Context, text, lang string) ([]domain.RawCandidate, error)
}

// LabelMap maps an engine's native tags onto canonical categories.
type LabelMap map[string]domain.Category

// Convert turns mentions into candidates. Mentions with unmapped labels or
// spans outside text are dropped.
func Convert(processor, text string, mentions []engine.Mention, labels LabelMap) []domain.RawCandidate {
	out := make([]domain.RawCandidate, 0, len(mentions))
	for _, m := range mentions {
		cat, ok := labels[m.Label]
		if !ok {
			continue
		}
		if m.Start < 0 || m.End > len(text) || m.Start >= m.End {
			continue
		}
		if !utf8.RuneStart(text[m.Start]) || (m.End < len(text) && !utf8.RuneStart(text[m.End])) {
			continue
		}

		meta := make(map[string]string, len(m.Metadata)+1)
		maps.Copy(meta, m.Metadata)
		meta[MetadataNativeLabel] = m.Label

		out = append(out, domain.RawCandidate{
			ProcessorID:      processor,
			SpanStart:        m.Start,
			SpanEnd:          m.End,
			Text:             text[m.Start:m.End],
			Category:         cat,
			EngineConfidence: clamp01(m.Score),
			EngineMetadata:   meta,
		})
	}
	return out
}

// HandleAdapter is the common body of the engine adapters: run the handle,
// then normalize the tagset.
type HandleAdapter struct {
	handle *engine.Handle
	labels LabelMap
}

// NewHandleAdapter binds a handle to its label map.
func NewHandleAdapter(h *engine.Handle, labels LabelMap) HandleAdapter {
	return HandleAdapter{handle: h, labels: labels}
}

// Name returns the engine name.
func (a HandleAdapter) Name() string { return a.handle.Name() }

// Version returns the engine version.
func (a HandleAdapter) Version() string { return a.handle.Profile().Version }

// Available reports handle availability.
func (a HandleAdapter) Available() bool { return a.handle.Available() }

// Extract runs the engine and converts its mentions.
func (a HandleAdapter) Extract(ctx context.Context, text, lang string) ([]domain.RawCandidate, error) {
	mentions, err := a.handle.Detect(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	return Convert(a.handle.Name(), text, mentions, a.labels), nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
