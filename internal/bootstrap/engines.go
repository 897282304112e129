package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/config"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/lexicon"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/pattern"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/sidecar"
)

const redisPingTimeout = 2 * time.Second

// ErrNoEngines is returned when configuration leaves nothing to run.
var ErrNoEngines = errors.New("no extraction engine enabled")

// registerEngines registers every enabled engine with pool and returns one
// adapter per engine.
func registerEngines(pool *engine.Pool, cfg *config.Config, languages []string, log logger.Logger) ([]processors.Adapter, error) {
	var adapters []processors.Adapter

	if cfg.Engines.Enabled(lexicon.Name) {
		bundle, err := lexicon.LoadBundle(cfg.Engines.ModelDir, languages)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		h, err := pool.Register(lexicon.Profile(bundle.Version()), lexicon.Loader(bundle))
		if err != nil {
			return nil, err
		}
		for lang, src := range bundle.Sources {
			log.Debug("Lexicon loaded", logger.String("language", lang), logger.String("source", src))
		}
		adapters = append(adapters, lexicon.NewAdapter(h))
	}

	if cfg.Engines.Enabled(pattern.Name) {
		h, err := pool.Register(pattern.Profile(), pattern.Loader(languages))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, pattern.NewAdapter(h))
	}

	if cfg.Engines.Enabled(sidecar.Name) {
		h, err := pool.Register(sidecar.Profile(cfg.Engines.Sidecar), sidecar.Loader(cfg.Engines.Sidecar, log))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, sidecar.NewAdapter(h))
	}

	if len(adapters) == 0 {
		return nil, ErrNoEngines
	}
	return adapters, nil
}
