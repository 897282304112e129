package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/cache"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/merge"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/lexicon"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/pattern"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors/sidecar"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/profiling"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/scoring"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/selector"
)

// Default configuration values.
const (
	defaultServiceName       = "scene-extractor"
	defaultServiceVersion    = "1.0.0"
	defaultServicePort       = 8095
	defaultShutdownTimeout   = 15 * time.Second
	defaultModelDir          = "./models"
	defaultDeadline          = 30 * time.Second
	defaultMinConfidence     = 0.3
	defaultMaxConcurrentJobs = 8
	defaultBatchConcurrency  = 4
	defaultBatchBurst        = 1
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config.yml"

// Config holds all configuration for the extractor.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Logging    logger.Config    `yaml:"logging"`
	Engines    EnginesConfig    `yaml:"engines"`
	Merge      merge.Config     `yaml:"merge"`
	Scoring    scoring.Config   `yaml:"scoring"`
	Selector   selector.Config  `yaml:"selector"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cache      cache.Config     `yaml:"cache"`
	Profiling  profiling.Config `yaml:"profiling"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `env:"EXTRACTOR_PORT" yaml:"port"`
	Debug           bool          `env:"APP_DEBUG"      yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EnginesConfig holds the engine pool and per-engine settings.
type EnginesConfig struct {
	engine.Config `yaml:",inline"`

	ModelDir string `env:"EXTRACTOR_MODEL_DIR" yaml:"model_dir"`
	// Disabled lists engines that are never registered.
	Disabled []string       `env:"EXTRACTOR_ENGINES_DISABLED" yaml:"disabled"`
	Sidecar  sidecar.Config `yaml:"sidecar"`
}

// Enabled reports whether name should be registered. The sidecar also needs a URL.
func (e *EnginesConfig) Enabled(name string) bool {
	if slices.Contains(e.Disabled, name) {
		return false
	}
	if name == sidecar.Name {
		return e.Sidecar.URL != ""
	}
	return true
}

// ExtractionConfig holds job defaults and concurrency limits.
type ExtractionConfig struct {
	// Deadline is the per-job deadline when the job sets none. Default: 30s
	Deadline time.Duration `env:"EXTRACTOR_DEADLINE" yaml:"deadline"`
	// MinConfidence is applied by the API and CLI when a request omits it.
	// Nil means 0.3; an explicit 0 keeps every description.
	MinConfidence *float64 `yaml:"min_confidence"`
	Languages     []string `env:"EXTRACTOR_LANGUAGES" yaml:"languages"`
	// MaxConcurrentJobs is the denominator of the load signal. Default: 8
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	// BatchConcurrency bounds ExtractForChapters. Default: 4
	BatchConcurrency int `yaml:"batch_concurrency"`
	// BatchRate limits job starts per second in a batch. Zero is unlimited.
	BatchRate  float64 `yaml:"batch_rate"`
	BatchBurst int     `yaml:"batch_burst"`
}

// DefaultMinConfidence returns the configured request default, or 0.3 when unset.
func (x *ExtractionConfig) DefaultMinConfidence() float64 {
	if x.MinConfidence == nil {
		return defaultMinConfidence
	}
	return *x.MinConfidence
}

// Load loads configuration from path. A missing file leaves defaults and environment in effect.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile[Config](path, true, setDefaults)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a fully defaulted config without reading files.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Logging.SetDefaults()
	setEngineDefaults(&cfg.Engines)
	cfg.Merge.SetDefaults()
	cfg.Scoring.SetDefaults()
	cfg.Selector.SetDefaults()
	setExtractionDefaults(&cfg.Extraction)
	cfg.Cache.SetDefaults()
	cfg.Profiling.SetDefaults()
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
}

func setEngineDefaults(e *EnginesConfig) {
	e.Config.SetDefaults()
	if e.ModelDir == "" {
		e.ModelDir = defaultModelDir
	}
}

func setExtractionDefaults(x *ExtractionConfig) {
	if x.Deadline == 0 {
		x.Deadline = defaultDeadline
	}
	if x.MinConfidence == nil {
		minConfidence := defaultMinConfidence
		x.MinConfidence = &minConfidence
	}
	if len(x.Languages) == 0 {
		x.Languages = []string{"en", "ru"}
	}
	if x.MaxConcurrentJobs == 0 {
		x.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if x.BatchConcurrency == 0 {
		x.BatchConcurrency = defaultBatchConcurrency
	}
	if x.BatchBurst == 0 {
		x.BatchBurst = defaultBatchBurst
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	var errs []error
	if err := ValidatePort("service.port", c.Service.Port); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := domain.NewLanguageSet(c.Extraction.Languages); err != nil {
		errs = append(errs, &ValidationError{Field: "extraction.languages", Message: err.Error()})
	}
	if c.Extraction.Deadline < 0 {
		errs = append(errs, &ValidationError{Field: "extraction.deadline", Message: "must not be negative"})
	}
	if !inUnit(c.Extraction.DefaultMinConfidence()) {
		errs = append(errs, &ValidationError{Field: "extraction.min_confidence", Message: "must be within [0,1]"})
	}
	if c.Extraction.MaxConcurrentJobs < 1 || c.Extraction.BatchConcurrency < 1 {
		errs = append(errs, &ValidationError{Field: "extraction", Message: "concurrency limits must be positive"})
	}
	if c.Extraction.BatchRate < 0 {
		errs = append(errs, &ValidationError{Field: "extraction.batch_rate", Message: "must not be negative"})
	}
	errs = append(errs, c.validateEngines()...)
	errs = append(errs, c.validateScoring()...)
	if c.Selector.ModerateLoad > c.Selector.HighLoad {
		errs = append(errs, &ValidationError{Field: "selector.moderate_load", Message: "must not exceed high_load"})
	}
	if c.Selector.ShortTextRunes > c.Selector.LongTextRunes {
		errs = append(errs, &ValidationError{Field: "selector.short_text_runes", Message: "must not exceed long_text_runes"})
	}
	return errors.Join(errs...)
}

func (c *Config) validateEngines() []error {
	var errs []error
	known := []string{lexicon.Name, pattern.Name, sidecar.Name}
	for _, name := range c.Engines.Disabled {
		if !slices.Contains(known, name) {
			errs = append(errs, &ValidationError{Field: "engines.disabled", Message: "unknown engine " + name})
		}
	}
	enabled := 0
	for _, name := range known {
		if c.Engines.Enabled(name) {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, &ValidationError{Field: "engines", Message: "at least one engine must be enabled"})
	}
	if !slices.Contains(known, c.Selector.SingleProcessor) {
		errs = append(errs, &ValidationError{Field: "selector.single_processor", Message: "unknown engine " + c.Selector.SingleProcessor})
	}
	return errs
}

func (c *Config) validateScoring() []error {
	var errs []error
	if !inUnit(c.Merge.OverlapThreshold) || c.Merge.OverlapThreshold == 0 {
		errs = append(errs, &ValidationError{Field: "merge.overlap_threshold", Message: "must be within (0,1]"})
	}
	if c.Scoring.Boost() < 0 {
		errs = append(errs, &ValidationError{Field: "scoring.agreement_boost", Message: "must not be negative"})
	}
	for cat, w := range c.Scoring.CategoryWeights {
		if !cat.Valid() {
			errs = append(errs, &ValidationError{Field: "scoring.category_weights", Message: "unknown category " + string(cat)})
		}
		if !inUnit(w) {
			errs = append(errs, &ValidationError{Field: "scoring.category_weights." + string(cat), Message: "must be within [0,1]"})
		}
	}
	for cat := range c.Scoring.CategoryMinLength {
		if !cat.Valid() {
			errs = append(errs, &ValidationError{Field: "scoring.category_min_length", Message: "unknown category " + string(cat)})
		}
	}
	return errs
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
