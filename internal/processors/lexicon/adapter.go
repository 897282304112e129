package lexicon

import (
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors"
)

// Name is the processor id.
const Name = "lexicon"

const (
	estimatedMemoryMB = 64
	typicalLatency    = 5 * time.Millisecond
)

// Labels maps lexicon tags onto canonical categories.
var Labels = processors.LabelMap{
	TagLocation: domain.CategoryLocation,
	TagPerson:   domain.CategoryCharacter,
	TagMood:     domain.CategoryAtmosphere,
	TagObject:   domain.CategoryObject,
	TagAction:   domain.CategoryAction,
}

// Profile describes the lexicon engine for the pool.
func Profile(version string) engine.Profile {
	return engine.Profile{
		Name:           Name,
		Version:        version,
		MemoryMB:       estimatedMemoryMB,
		TypicalLatency: typicalLatency,
	}
}

// Adapter is the lexicon ProcessorAdapter.
type Adapter struct {
	processors.HandleAdapter
}

// NewAdapter wraps the pool's lexicon handle.
func NewAdapter(h *engine.Handle) *Adapter {
	return &Adapter{HandleAdapter: processors.NewHandleAdapter(h, Labels)}
}
