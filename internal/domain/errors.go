package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Adapter-level kinds are absorbed by the coordinator as partial
// failures; only ErrUnsupportedLanguage, ErrAllEnginesFailed, ErrInvalidJob and
// context errors reach the caller.
var (
	ErrEngineUnavailable   = errors.New("engine unavailable")
	ErrEngineTimeout       = errors.New("engine timeout")
	ErrEngineError         = errors.New("engine error")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrAllEnginesFailed    = errors.New("all engines failed")
	ErrInvalidJob          = errors.New("invalid job")
)

// EngineFailure records why one processor produced no candidates.
type EngineFailure struct {
	Processor string
	Kind      error
	Err       error
}

// NewEngineFailure wraps err with the given kind for processor.
func NewEngineFailure(processor string, kind, err error) *EngineFailure {
	return &EngineFailure{Processor: processor, Kind: kind, Err: err}
}

func (f *EngineFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %v", f.Processor, f.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", f.Processor, f.Kind, f.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (f *EngineFailure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// ExtractionError is the job-terminal error returned by the coordinator.
type ExtractionError struct {
	JobID    string
	State    JobState
	Kind     error
	Failures []*EngineFailure
	Err      error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "extraction job %s failed in state %s: %v", e.JobID, e.State, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Failures) > 0 {
		parts := make([]string, len(e.Failures))
		for i, f := range e.Failures {
			parts[i] = f.Error()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	return b.String()
}

// Unwrap exposes the kind, the cause and every engine failure.
func (e *ExtractionError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+2)
	out = append(out, e.Kind)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

// FailureReason maps an error onto a short label for metrics and logs.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEngineTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEngineUnavailable):
		return "unavailable"
	case errors.Is(err, ErrEngineError):
		return "engine_error"
	case errors.Is(err, ErrUnsupportedLanguage):
		return "unsupported_language"
	case errors.Is(err, ErrAllEnginesFailed):
		return "all_engines_failed"
	case errors.Is(err, ErrInvalidJob):
		return "invalid_job"
	default:
		return "unknown"
	}
}
