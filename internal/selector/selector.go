// Package selector decides which execution mode and processors a job runs with.
package selector

import (
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

const (
	defaultHighLoad        = 0.85
	defaultModerateLoad    = 0.5
	defaultShortTextRunes  = 8000
	defaultLongTextRunes   = 40000
	defaultSingleProcessor = "lexicon"
	minEnsembleProcessors  = 2
)

// Config holds the selection thresholds.
type Config struct {
	// HighLoad sheds every job to SINGLE at or above this load. Default: 0.85
	HighLoad float64 `yaml:"high_load"`
	// ModerateLoad is the ceiling under which high-quality jobs may fan out. Default: 0.5
	ModerateLoad float64 `yaml:"moderate_load"`
	// ShortTextRunes is the length at or under which chapters always get ENSEMBLE. Default: 8000
	ShortTextRunes int `yaml:"short_text_runes"`
	// LongTextRunes is the length at or above which chapters degrade. Default: 40000
	LongTextRunes int `yaml:"long_text_runes"`
	// SingleProcessor is the general-purpose engine used in SINGLE mode. Default: lexicon
	SingleProcessor string `yaml:"single_processor"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HighLoad == 0 {
		c.HighLoad = defaultHighLoad
	}
	if c.ModerateLoad == 0 {
		c.ModerateLoad = defaultModerateLoad
	}
	if c.ShortTextRunes == 0 {
		c.ShortTextRunes = defaultShortTextRunes
	}
	if c.LongTextRunes == 0 {
		c.LongTextRunes = defaultLongTextRunes
	}
	if c.SingleProcessor == "" {
		c.SingleProcessor = defaultSingleProcessor
	}
}

// Request holds the inputs of one decision.
type Request struct {
	// Mode is the caller's requested mode; ADAPTIVE lets the selector choose.
	Mode domain.Mode
	// TextLength in runes.
	TextLength int
	Quality    domain.QualityTarget
	// Load in [0,1].
	Load float64
	// Available processors, highest priority first.
	Available []string
}

// Selector is a pure function of its Request. It is safe for concurrent use.
type Selector struct {
	cfg    Config
	logger logger.Logger
}

// New creates a Selector.
func New(cfg Config, log logger.Logger) *Selector {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &Selector{cfg: cfg, logger: log}
}

// Decide returns the execution plan for req.
func (s *Selector) Decide(req Request) domain.ModeDecision {
	mode, reason := req.Mode, fmt.Sprintf("requested %s", req.Mode)
	if mode == domain.ModeAdaptive || mode == "" {
		mode, reason = s.adaptive(req)
	}

	if mode != domain.ModeSingle && len(req.Available) < minEnsembleProcessors {
		reason = fmt.Sprintf("%s; only %d engine(s) available, using single", reason, len(req.Available))
		mode = domain.ModeSingle
	}

	decision := domain.ModeDecision{Mode: mode, Reason: reason}
	decision.Inputs.TextLength = req.TextLength
	decision.Inputs.QualityTarget = req.Quality
	decision.Inputs.LoadSignal = req.Load

	if mode == domain.ModeSingle {
		primary, fallback := s.singlePlan(req.Available)
		if primary != "" {
			decision.Processors = []string{primary}
		}
		decision.Fallback = fallback
	} else {
		decision.Processors = slices.Clone(req.Available)
		decision.Concurrent = true
	}

	s.logger.Debug("Mode selected",
		logger.String("mode", string(decision.Mode)),
		logger.String("reason", decision.Reason),
		logger.Strings("processors", decision.Processors),
		logger.Int("text_length", req.TextLength),
		logger.String("quality_target", string(req.Quality)),
		logger.Float64("load", req.Load),
	)
	return decision
}

func (s *Selector) adaptive(req Request) (domain.Mode, string) {
	highQualityHeadroom := req.Quality == domain.QualityHigh && req.Load < s.cfg.ModerateLoad

	switch {
	case req.Load >= s.cfg.HighLoad:
		return domain.ModeSingle, fmt.Sprintf("load_shed: load %.2f >= %.2f", req.Load, s.cfg.HighLoad)
	case req.Quality == domain.QualityFast:
		return domain.ModeSingle, "fast quality target"
	case req.TextLength <= s.cfg.ShortTextRunes:
		return domain.ModeEnsemble, fmt.Sprintf("short text: %d <= %d runes", req.TextLength, s.cfg.ShortTextRunes)
	case req.TextLength >= s.cfg.LongTextRunes && highQualityHeadroom:
		return domain.ModeParallel, fmt.Sprintf("long text: %d >= %d runes, high quality with load %.2f",
			req.TextLength, s.cfg.LongTextRunes, req.Load)
	case req.TextLength >= s.cfg.LongTextRunes:
		return domain.ModeSingle, fmt.Sprintf("long text: %d >= %d runes", req.TextLength, s.cfg.LongTextRunes)
	case highQualityHeadroom:
		return domain.ModeEnsemble, fmt.Sprintf("medium text, high quality with load %.2f", req.Load)
	default:
		return domain.ModeParallel, fmt.Sprintf("medium text: %d runes", req.TextLength)
	}
}

// singlePlan prefers the configured general-purpose engine, then the rest in priority order.
func (s *Selector) singlePlan(available []string) (string, []string) {
	if len(available) == 0 {
		return "", nil
	}
	primary := available[0]
	if slices.Contains(available, s.cfg.SingleProcessor) {
		primary = s.cfg.SingleProcessor
	}
	fallback := make([]string, 0, len(available)-1)
	for _, p := range available {
		if p != primary {
			fallback = append(fallback, p)
		}
	}
	return primary, fallback
}
