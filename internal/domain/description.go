package domain

import "slices"

// RawCandidate is one span detected by one processor. Spans are UTF-8 byte
// offsets into the chapter text, half-open: [SpanStart, SpanEnd).
type RawCandidate struct {
	ProcessorID      string            `json:"processor_id"`
	SpanStart        int               `json:"span_start"`
	SpanEnd          int               `json:"span_end"`
	Text             string            `json:"text"`
	Category         Category          `json:"category"`
	EngineConfidence float64           `json:"engine_confidence"`
	EngineMetadata   map[string]string `json:"engine_metadata,omitempty"`
}

// Len returns the span length in bytes.
func (c RawCandidate) Len() int {
	return c.SpanEnd - c.SpanStart
}

// Description is the canonical unit returned to the illustration pipeline.
type Description struct {
	ID                     string   `json:"id"`
	Category               Category `json:"category"`
	Text                   string   `json:"text"`
	ContextWindow          string   `json:"context_window"`
	ConfidenceScore        float64  `json:"confidence_score"`
	PriorityScore          float64  `json:"priority_score"`
	ContributingProcessors []string `json:"contributing_processors"`
	PositionInChapter      float64  `json:"position_in_chapter"`
	SpanStart              int      `json:"span_start"`
	SpanEnd                int      `json:"span_end"`
	EntitiesMentioned      []string `json:"entities_mentioned"`
	SuitableForGeneration  bool     `json:"suitable_for_generation"`
}

// Len returns the span length in bytes.
func (d Description) Len() int {
	return d.SpanEnd - d.SpanStart
}

// Clone returns a deep copy so cached results cannot be mutated through a caller's slice.
func (d Description) Clone() Description {
	out := d
	out.ContributingProcessors = slices.Clone(d.ContributingProcessors)
	out.EntitiesMentioned = slices.Clone(d.EntitiesMentioned)
	return out
}

// CloneDescriptions deep-copies a result set.
func CloneDescriptions(in []Description) []Description {
	if in == nil {
		return nil
	}
	out := make([]Description, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
