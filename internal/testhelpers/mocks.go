// Package testhelpers provides shared test doubles for the extractor.
package testhelpers

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
)

// MockAdapter implements processors.Adapter with scripted behaviour and a call counter.
type MockAdapter struct {
	name      string
	version   string
	available atomic.Bool
	calls     atomic.Int64
	extract   func(ctx context.Context, text, lang string) ([]domain.RawCandidate, error)
}

// NewMockAdapter creates an available adapter driven by fn.
func NewMockAdapter(
	name string, fn func(ctx context.Context, text, lang string) ([]domain.RawCandidate, error),
) *MockAdapter {
	m := &MockAdapter{name: name, version: "test-1", extract: fn}
	m.available.Store(true)
	return m
}

// NewStaticAdapter always returns candidates, restamped with its own name.
func NewStaticAdapter(name string, candidates ...domain.RawCandidate) *MockAdapter {
	return NewMockAdapter(name, func(ctx context.Context, _, _ string) ([]domain.RawCandidate, error) {
		if err := ctx.Err(); err != nil {
			return nil, contextFailure(name, err)
		}
		out := make([]domain.RawCandidate, len(candidates))
		for i, c := range candidates {
			c.ProcessorID = name
			out[i] = c
		}
		return out, nil
	})
}

// NewFailingAdapter always fails with kind.
func NewFailingAdapter(name string, kind error) *MockAdapter {
	return NewMockAdapter(name, func(context.Context, string, string) ([]domain.RawCandidate, error) {
		return nil, domain.NewEngineFailure(name, kind, errors.New("scripted failure"))
	})
}

// NewSlowAdapter returns candidates after delay, or a timeout/cancellation
// failure if ctx ends first.
func NewSlowAdapter(name string, delay time.Duration, candidates ...domain.RawCandidate) *MockAdapter {
	static := NewStaticAdapter(name, candidates...)
	return NewMockAdapter(name, func(ctx context.Context, text, lang string) ([]domain.RawCandidate, error) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return static.extract(ctx, text, lang)
		case <-ctx.Done():
			return nil, contextFailure(name, ctx.Err())
		}
	})
}

func contextFailure(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewEngineFailure(name, domain.ErrEngineTimeout, err)
	}
	return domain.NewEngineFailure(name, err, nil)
}

// Name returns the processor id.
func (m *MockAdapter) Name() string { return m.name }

// Version returns the scripted version.
func (m *MockAdapter) Version() string { return m.version }

// SetVersion changes the reported version.
func (m *MockAdapter) SetVersion(v string) { m.version = v }

// Available reports the scripted availability.
func (m *MockAdapter) Available() bool { return m.available.Load() }

// SetAvailable toggles availability.
func (m *MockAdapter) SetAvailable(v bool) { m.available.Store(v) }

// Extract counts the call and runs the script.
func (m *MockAdapter) Extract(ctx context.Context, text, lang string) ([]domain.RawCandidate, error) {
	m.calls.Add(1)
	return m.extract(ctx, text, lang)
}

// Calls returns how many times Extract ran.
func (m *MockAdapter) Calls() int {
	return int(m.calls.Load())
}

// Candidate builds a candidate for the first occurrence of phrase in text.
// It panics when phrase is absent so broken fixtures fail loudly.
func Candidate(text, phrase string, cat domain.Category, confidence float64) domain.RawCandidate {
	start := strings.Index(text, phrase)
	if start < 0 {
		panic("testhelpers: phrase not in text: " + phrase)
	}
	return domain.RawCandidate{
		SpanStart:        start,
		SpanEnd:          start + len(phrase),
		Text:             phrase,
		Category:         cat,
		EngineConfidence: confidence,
	}
}
