// Package engine owns the process-wide pool of loaded text-analysis engines.
// Each engine sits behind a Handle that serializes calls, enforces deadlines,
// tracks health and can swap in a fresh instance when a call stalls.
package engine

import (
	"context"
	"time"
)

// Mention is one span reported by an engine in its native tagset. Offsets are
// UTF-8 byte offsets into the analysed text.
type Mention struct {
	Start    int
	End      int
	Label    string
	Score    float64
	Metadata map[string]string
}

// Model is one loaded engine instance. Implementations must honour ctx where
// they can; the handle enforces deadlines either way.
type Model interface {
	Detect(ctx context.Context, text, lang string) ([]Mention, error)
	// Health reports whether the instance can serve calls.
	Health(ctx context.Context) error
	Close() error
}

// Loader builds a Model from the model store.
type Loader func(ctx context.Context) (Model, error)

// Profile describes an engine's identity and resource footprint.
type Profile struct {
	Name           string        `json:"name"`
	Version        string        `json:"version"`
	MemoryMB       int           `json:"memory_mb"`
	TypicalLatency time.Duration `json:"typical_latency"`
}
