// Package scoring computes confidence, priority and suitability for merged
// description candidates. Everything here is pure and deterministic.
package scoring

import (
	"maps"
	"math"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
)

const (
	defaultAgreementBoost     = 0.15
	defaultSuitableConfidence = 0.5
	defaultMaxDensityBonus    = 0.05
	defaultDensitySaturation  = 5
	defaultMinLength          = 10
	defaultCharacterMinLength = 2

	// Priority is split 70/20/10 between category weight, confidence and
	// how early the span appears in the chapter.
	categoryPriorityShare   = 70.0
	confidencePriorityShare = 20.0
	positionPriorityShare   = 10.0
	maxPriority             = 100.0
)

// Config holds scoring weights and thresholds.
type Config struct {
	// AgreementBoost is the per-extra-processor multiplier in voting mode.
	// Nil means 0.15; an explicit 0 disables the boost.
	AgreementBoost *float64 `yaml:"agreement_boost"`
	// CategoryWeights in [0,1]; a zero weight makes a category unsuitable.
	// Categories left out keep their default weight.
	CategoryWeights map[domain.Category]float64 `yaml:"category_weights"`
	// SuitableConfidence is the minimum confidence for SuitableForGeneration. Default: 0.5
	SuitableConfidence float64 `yaml:"suitable_confidence"`
	// MaxDensityBonus caps the entity-density bonus. Default: 0.05
	MaxDensityBonus float64 `yaml:"max_density_bonus"`
	// DensitySaturation is the entity count at which the bonus is fully applied. Default: 5
	DensitySaturation int `yaml:"density_saturation"`
	// MinLength is the minimum span length in characters. Default: 10
	MinLength int `yaml:"min_length"`
	// CategoryMinLength overrides MinLength per category. Default: character=2.
	// Setting other categories keeps the character override.
	CategoryMinLength map[domain.Category]int `yaml:"category_min_length"`
}

// DefaultCategoryWeights ranks scenery and people above props and motion.
func DefaultCategoryWeights() map[domain.Category]float64 {
	return map[domain.Category]float64{
		domain.CategoryLocation:   1.0,
		domain.CategoryCharacter:  0.95,
		domain.CategoryAtmosphere: 0.75,
		domain.CategoryObject:     0.6,
		domain.CategoryAction:     0.5,
	}
}

// SetDefaults fills unset fields. Partially configured maps are completed
// key by key, never replaced.
func (c *Config) SetDefaults() {
	if c.AgreementBoost == nil {
		boost := defaultAgreementBoost
		c.AgreementBoost = &boost
	}
	weights := DefaultCategoryWeights()
	maps.Copy(weights, c.CategoryWeights)
	c.CategoryWeights = weights
	if c.SuitableConfidence == 0 {
		c.SuitableConfidence = defaultSuitableConfidence
	}
	if c.MaxDensityBonus == 0 {
		c.MaxDensityBonus = defaultMaxDensityBonus
	}
	if c.DensitySaturation == 0 {
		c.DensitySaturation = defaultDensitySaturation
	}
	if c.MinLength == 0 {
		c.MinLength = defaultMinLength
	}
	minLengths := map[domain.Category]int{domain.CategoryCharacter: defaultCharacterMinLength}
	maps.Copy(minLengths, c.CategoryMinLength)
	c.CategoryMinLength = minLengths
}

// Boost returns the configured agreement boost, or the default when unset.
func (c *Config) Boost() float64 {
	if c.AgreementBoost == nil {
		return defaultAgreementBoost
	}
	return *c.AgreementBoost
}

// Input is everything the engine needs to score one merged group.
type Input struct {
	Category domain.Category
	// Text is the canonical span text.
	Text string
	// Confidences of the contributors that agree with Category, one per processor.
	Confidences []float64
	// Voting enables the agreement boost.
	Voting bool
}

// ChapterContext describes where the span sits in its chapter.
type ChapterContext struct {
	// Position is SpanStart/len(chapter) in [0,1].
	Position float64
	// EntityCount is the number of distinct characters named in the context window.
	EntityCount int
}

// Result is the scored view of a group.
type Result struct {
	Confidence float64
	Priority   float64
	Suitable   bool
}

// Engine applies a Config. The zero value is not usable; call New.
type Engine struct {
	cfg Config
}

// New creates an engine, filling unset config fields with defaults.
func New(cfg Config) *Engine {
	cfg.SetDefaults()
	return &Engine{cfg: cfg}
}

// Score returns confidence, priority and suitability for in.
func (e *Engine) Score(in Input, chapter ChapterContext) Result {
	confidence := e.Confidence(in, chapter)
	return Result{
		Confidence: confidence,
		Priority:   e.Priority(in.Category, confidence, chapter.Position),
		Suitable:   e.Suitable(in.Category, in.Text, confidence),
	}
}

// Confidence is clamp(base * (1 + boost*(agree-1)), 0, 1) where base is the
// strongest contributor scaled by the length factor plus the density bonus.
// It never decreases as agreeing contributors are added.
func (e *Engine) Confidence(in Input, chapter ChapterContext) float64 {
	if len(in.Confidences) == 0 {
		return 0
	}
	best := 0.0
	for _, c := range in.Confidences {
		best = math.Max(best, clamp01(c))
	}

	base := best*e.lengthFactor(in.Category, in.Text) + e.densityBonus(chapter.EntityCount)
	agree := 1
	if in.Voting {
		agree = len(in.Confidences)
	}
	return clamp01(base * (1 + e.cfg.Boost()*float64(agree-1)))
}

// Priority maps category weight, confidence and chapter position onto [0,100].
// Earlier spans rank slightly higher.
func (e *Engine) Priority(cat domain.Category, confidence, position float64) float64 {
	p := categoryPriorityShare*e.cfg.CategoryWeights[cat] +
		confidencePriorityShare*clamp01(confidence) +
		positionPriorityShare*(1-clamp01(position))
	return math.Min(maxPriority, math.Max(0, p))
}

// Suitable reports whether a description is worth sending to the generator.
func (e *Engine) Suitable(cat domain.Category, text string, confidence float64) bool {
	return confidence >= e.cfg.SuitableConfidence &&
		utf8.RuneCountInString(text) >= e.MinLength(cat) &&
		e.cfg.CategoryWeights[cat] > 0
}

// MinLength returns the minimum span length, in characters, for cat.
func (e *Engine) MinLength(cat domain.Category) int {
	if n, ok := e.cfg.CategoryMinLength[cat]; ok {
		return n
	}
	return e.cfg.MinLength
}

// lengthFactor is 1 at or above the category minimum and falls linearly to 0 below it.
func (e *Engine) lengthFactor(cat domain.Category, text string) float64 {
	minLen := e.MinLength(cat)
	if minLen <= 0 {
		return 1
	}
	n := utf8.RuneCountInString(text)
	if n >= minLen {
		return 1
	}
	return float64(n) / float64(minLen)
}

func (e *Engine) densityBonus(entities int) float64 {
	if entities <= 0 || e.cfg.DensitySaturation <= 0 {
		return 0
	}
	ratio := math.Min(1, float64(entities)/float64(e.cfg.DensitySaturation))
	return e.cfg.MaxDensityBonus * ratio
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
