package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

var (
	errRetired = errors.New("engine instance retired")
	errClosed  = errors.New("engine closed")
)

// instance is one loaded model plus its single-flight slot.
type instance struct {
	model Model
	slot  chan struct{}

	mu      sync.Mutex
	busy    bool
	retired bool
	closed  bool
}

func newInstance(m Model) *instance {
	return &instance{model: m, slot: make(chan struct{}, 1)}
}

func (i *instance) acquire(ctx context.Context) error {
	select {
	case i.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	i.mu.Lock()
	if i.retired {
		i.mu.Unlock()
		<-i.slot
		return errRetired
	}
	i.busy = true
	i.mu.Unlock()
	return nil
}

// release frees the slot and closes the model if it was retired mid-call.
func (i *instance) release() {
	i.mu.Lock()
	i.busy = false
	closeNow := i.retired && !i.closed
	if closeNow {
		i.closed = true
	}
	i.mu.Unlock()

	<-i.slot
	if closeNow {
		_ = i.model.Close()
	}
}

// retire marks the instance stale; it is closed once its current call drains.
func (i *instance) retire() {
	i.mu.Lock()
	i.retired = true
	closeNow := !i.busy && !i.closed
	if closeNow {
		i.closed = true
	}
	i.mu.Unlock()

	if closeNow {
		_ = i.model.Close()
	}
}

// Handle is the shared, single-flight entry point to one engine. Handles are
// created by a Pool and must not be copied.
type Handle struct {
	profile        Profile
	load           Loader
	lazy           bool
	callTimeout    time.Duration
	loadTimeout    time.Duration
	restartOnStall bool
	health         *healthTracker
	logger         logger.Logger

	// loading serializes model loads without blocking callers past their deadline.
	loading chan struct{}

	mu        sync.Mutex
	cur       *instance
	loadErr   error
	attempted bool
	restarts  int
	closed    bool
}

// Profile returns the engine's identity and footprint.
func (h *Handle) Profile() Profile {
	return h.profile
}

// Name is shorthand for Profile().Name.
func (h *Handle) Name() string {
	return h.profile.Name
}

// Available reports whether the handle would admit a call now.
func (h *Handle) Available() bool {
	if !h.health.allow() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	return h.cur != nil || (h.lazy && !h.attempted) || h.loadErr == nil
}

// Detect runs the engine over text. Only one call runs on an instance at a time.
// Failures are *domain.EngineFailure values classified as unavailable, timeout,
// engine error or the context's cancellation.
func (h *Handle) Detect(ctx context.Context, text, lang string) ([]Mention, error) {
	if h.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.callTimeout)
		defer cancel()
	}

	if !h.health.allow() {
		_, lastErr := h.health.snapshot()
		return nil, h.failure(domain.ErrEngineUnavailable, lastErr)
	}

	inst, err := h.acquire(ctx)
	if err != nil {
		return nil, err
	}

	type result struct {
		mentions []Mention
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer inst.release()
		m, detectErr := inst.model.Detect(ctx, text, lang)
		done <- result{mentions: m, err: detectErr}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, h.contextFailure(ctx)
			}
			h.health.recordFailure(r.err)
			return nil, h.failure(domain.ErrEngineError, r.err)
		}
		h.health.recordCallSuccess()
		return r.mentions, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && h.restartOnStall {
			h.restart(inst)
		}
		return nil, h.contextFailure(ctx)
	}
}

// acquire resolves the current instance and takes its slot.
func (h *Handle) acquire(ctx context.Context) (*instance, error) {
	for {
		inst, err := h.current(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, h.contextFailure(ctx)
			}
			return nil, h.failure(domain.ErrEngineUnavailable, err)
		}

		err = inst.acquire(ctx)
		switch {
		case err == nil:
			return inst, nil
		case errors.Is(err, errRetired):
			continue
		default:
			return nil, h.contextFailure(ctx)
		}
	}
}

// current returns the live instance, loading one if needed. A closed handle
// never loads again.
func (h *Handle) current(ctx context.Context) (*instance, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errClosed
	}
	if h.cur != nil {
		inst := h.cur
		h.mu.Unlock()
		return inst, nil
	}
	h.mu.Unlock()

	select {
	case h.loading <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-h.loading }()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errClosed
	}
	if h.cur != nil {
		inst := h.cur
		h.mu.Unlock()
		return inst, nil
	}
	h.mu.Unlock()

	start := time.Now()
	m, err := h.load(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		if err == nil {
			_ = m.Close()
		}
		return nil, errClosed
	}
	h.attempted = true
	if err != nil {
		h.loadErr = err
		h.logger.Error("Engine load failed",
			logger.String("engine", h.profile.Name),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("load %s: %w", h.profile.Name, err)
	}
	h.loadErr = nil
	h.cur = newInstance(m)
	h.logger.Info("Engine loaded",
		logger.String("engine", h.profile.Name),
		logger.String("version", h.profile.Version),
		logger.Duration("duration", time.Since(start)),
	)
	return h.cur, nil
}

// restart retires inst and, unless the handle is lazy, loads a replacement in the background.
func (h *Handle) restart(inst *instance) {
	h.mu.Lock()
	if h.cur != inst {
		h.mu.Unlock()
		return
	}
	h.cur = nil
	h.restarts++
	restarts := h.restarts
	h.mu.Unlock()

	inst.retire()
	h.logger.Warn("Engine stalled past deadline, restarting",
		logger.String("engine", h.profile.Name),
		logger.Int("restarts", restarts),
	)

	if !h.lazy {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.loadTimeout)
			defer cancel()
			_, _ = h.current(ctx)
		}()
	}
}

// checkHealth probes the engine, loading it first when it should be resident.
func (h *Handle) checkHealth(ctx context.Context) error {
	h.mu.Lock()
	inst := h.cur
	skip := inst == nil && h.lazy && !h.attempted
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return errClosed
	}
	if skip {
		return nil
	}

	if inst == nil {
		var err error
		if inst, err = h.current(ctx); err != nil {
			h.health.recordFailure(err)
			return err
		}
	}
	if err := inst.model.Health(ctx); err != nil {
		h.health.recordFailure(err)
		return fmt.Errorf("%s health: %w", h.profile.Name, err)
	}
	h.health.recordProbeSuccess()
	return nil
}

func (h *Handle) close() error {
	h.mu.Lock()
	inst := h.cur
	h.cur = nil
	h.closed = true
	h.mu.Unlock()
	if inst != nil {
		inst.retire()
	}
	return nil
}

func (h *Handle) failure(kind, err error) *domain.EngineFailure {
	return domain.NewEngineFailure(h.profile.Name, kind, err)
}

// contextFailure maps an expired deadline to ErrEngineTimeout and a cancellation to itself.
func (h *Handle) contextFailure(ctx context.Context) *domain.EngineFailure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return h.failure(domain.ErrEngineTimeout, ctx.Err())
	}
	return h.failure(ctx.Err(), nil)
}

// Status is a point-in-time view of a handle.
type Status struct {
	Profile
	Loaded    bool   `json:"loaded"`
	State     string `json:"state"`
	Available bool   `json:"available"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

// Status returns the handle's current state.
func (h *Handle) Status() Status {
	state, lastErr := h.health.snapshot()
	available := h.Available()

	h.mu.Lock()
	defer h.mu.Unlock()
	s := Status{
		Profile:   h.profile,
		Loaded:    h.cur != nil,
		State:     state.String(),
		Available: available,
		Restarts:  h.restarts,
	}
	switch {
	case lastErr != nil:
		s.LastError = lastErr.Error()
	case h.loadErr != nil:
		s.LastError = h.loadErr.Error()
	}
	return s
}
