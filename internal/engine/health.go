package engine

import (
	"sync"
	"time"
)

// State is an engine's health as seen by the pool.
type State int

const (
	// StateHealthy means calls are admitted.
	StateHealthy State = iota
	// StateUnhealthy means calls are rejected until a health check passes.
	StateUnhealthy
	// StateRecovering means at least one health check passed but not enough to admit calls.
	StateRecovering
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// healthTracker is a breaker that only health checks can close.
type healthTracker struct {
	mu               sync.RWMutex
	state            State
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	lastErr          error
	lastChange       time.Time
	onStateChange    func(from, to State)
}

func newHealthTracker(failureThreshold, successThreshold int, onStateChange func(from, to State)) *healthTracker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &healthTracker{
		state:            StateHealthy,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		onStateChange:    onStateChange,
	}
}

// allow reports whether calls may proceed.
func (t *healthTracker) allow() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state == StateHealthy
}

// recordFailure counts an engine error or failed health check.
func (t *healthTracker) recordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastErr = err
	t.failureCount++
	switch t.state {
	case StateHealthy:
		if t.failureCount >= t.failureThreshold {
			t.transitionTo(StateUnhealthy)
		}
	case StateRecovering:
		t.transitionTo(StateUnhealthy)
	case StateUnhealthy:
	}
}

// recordCallSuccess resets the consecutive failure count after a good call.
func (t *healthTracker) recordCallSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateHealthy {
		t.failureCount = 0
	}
}

// recordProbeSuccess moves an unhealthy engine towards healthy.
func (t *healthTracker) recordProbeSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateHealthy:
		t.failureCount = 0
	case StateUnhealthy, StateRecovering:
		t.successCount++
		if t.successCount >= t.successThreshold {
			t.lastErr = nil
			t.transitionTo(StateHealthy)
		} else {
			t.transitionTo(StateRecovering)
		}
	}
}

func (t *healthTracker) transitionTo(newState State) {
	if t.state == newState {
		return
	}

	oldState := t.state
	t.state = newState
	t.lastChange = time.Now()

	switch newState {
	case StateHealthy, StateUnhealthy:
		t.failureCount = 0
		t.successCount = 0
	case StateRecovering:
	}

	if t.onStateChange != nil {
		t.onStateChange(oldState, newState)
	}
}

func (t *healthTracker) snapshot() (State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, t.lastErr
}
