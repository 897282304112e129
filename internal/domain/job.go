package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the coordinator runs the processors.
type Mode string

// Execution modes.
const (
	ModeSingle   Mode = "single"
	ModeParallel Mode = "parallel"
	ModeEnsemble Mode = "ensemble"
	ModeAdaptive Mode = "adaptive"
)

// ParseMode parses a mode name. An empty string means adaptive.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAdaptive, nil
	case ModeSingle, ModeParallel, ModeEnsemble, ModeAdaptive:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidJob, s)
	}
}

// Voting reports whether the merge step applies majority voting and the agreement boost.
func (m Mode) Voting() bool {
	return m == ModeEnsemble
}

// QualityTarget expresses how much latency the caller trades for precision.
type QualityTarget string

// Quality targets.
const (
	QualityFast     QualityTarget = "fast"
	QualityBalanced QualityTarget = "balanced"
	QualityHigh     QualityTarget = "high"
)

// ParseQualityTarget parses a quality target. An empty string means balanced.
func ParseQualityTarget(s string) (QualityTarget, error) {
	switch q := QualityTarget(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return QualityBalanced, nil
	case QualityFast, QualityBalanced, QualityHigh:
		return q, nil
	default:
		return "", fmt.Errorf("%w: unknown quality target %q", ErrInvalidJob, s)
	}
}

// ProcessingJob is the input for one chapter extraction.
type ProcessingJob struct {
	ChapterText   string
	Language      string
	Mode          Mode
	Deadline      time.Duration
	MinConfidence float64
	QualityTarget QualityTarget
	// LoadSignal overrides the coordinator's own load estimate when non-nil. Range [0,1].
	LoadSignal *float64
}

// ModeDecision is the execution plan for one job.
type ModeDecision struct {
	Mode       Mode     `json:"mode"`
	Processors []string `json:"processors"`
	Concurrent bool     `json:"concurrent"`
	// Fallback lists processors tried in order when a SINGLE-mode primary is unavailable.
	Fallback []string `json:"fallback,omitempty"`
	Reason   string   `json:"reason"`
	Inputs   struct {
		TextLength    int           `json:"text_length"`
		QualityTarget QualityTarget `json:"quality_target"`
		LoadSignal    float64       `json:"load_signal"`
	} `json:"inputs"`
}

// JobState tracks a job through the coordinator.
type JobState string

// Coordinator states.
const (
	StatePending         JobState = "pending"
	StateDispatching     JobState = "dispatching"
	StateAwaitingResults JobState = "awaiting_results"
	StateMerging         JobState = "merging"
	StateScored          JobState = "scored"
	StateDone            JobState = "done"
	StateFailed          JobState = "failed"
)

var stateTransitions = map[JobState][]JobState{
	StatePending:         {StateDispatching, StateDone},
	StateDispatching:     {StateAwaitingResults},
	StateAwaitingResults: {StateMerging},
	StateMerging:         {StateScored},
	StateScored:          {StateDone},
}

// CanTransition reports whether from -> to is a legal move. Failed is reachable from any
// non-terminal state; Pending may jump straight to Done for trivial input and cache hits.
func CanTransition(from, to JobState) bool {
	if from == StateDone || from == StateFailed {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
