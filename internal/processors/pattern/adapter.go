package pattern

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors"
)

// Name is the processor id.
const Name = "pattern"

const (
	estimatedMemoryMB = 8
	typicalLatency    = 2 * time.Millisecond
)

// Labels maps rule tags onto canonical categories.
var Labels = processors.LabelMap{
	TagPerson: domain.CategoryCharacter,
	TagPlace:  domain.CategoryLocation,
	TagMood:   domain.CategoryAtmosphere,
	TagThing:  domain.CategoryObject,
	TagEvent:  domain.CategoryAction,
}

// Profile describes the rule engine for the pool.
func Profile() engine.Profile {
	return engine.Profile{
		Name:           Name,
		Version:        Version,
		MemoryMB:       estimatedMemoryMB,
		TypicalLatency: typicalLatency,
	}
}

// Loader compiles the built-in rules for the given languages.
func Loader(languages []string) engine.Loader {
	return func(ctx context.Context) (engine.Model, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewModel(BuiltinRules(languages))
	}
}

// Adapter is the rule engine ProcessorAdapter.
type Adapter struct {
	processors.HandleAdapter
}

// NewAdapter wraps the pool's pattern handle.
func NewAdapter(h *engine.Handle) *Adapter {
	return &Adapter{HandleAdapter: processors.NewHandleAdapter(h, Labels)}
}
