package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

// fakeModel is a scriptable engine instance.
type fakeModel struct {
	delay     time.Duration
	ignoreCtx bool
	detectErr error
	healthErr atomic.Pointer[error]

	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
	closed    atomic.Bool
}

func (m *fakeModel) Detect(ctx context.Context, _, _ string) ([]engine.Mention, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		cur := m.maxActive.Load()
		if n <= cur || m.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.delay > 0 {
		if m.ignoreCtx {
			time.Sleep(m.delay)
		} else {
			select {
			case <-time.After(m.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	return []engine.Mention{{Start: 0, End: 4, Label: "PER", Score: 0.9}}, nil
}

func (m *fakeModel) Health(context.Context) error {
	if p := m.healthErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

type fakeLoader struct {
	mu      sync.Mutex
	models  []*fakeModel
	next    func() *fakeModel
	loadErr error
}

func (l *fakeLoader) load(context.Context) (engine.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	m := l.next()
	l.models = append(l.models, m)
	return m, nil
}

func (l *fakeLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.models)
}

func (l *fakeLoader) model(i int) *fakeModel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.models[i]
}

func newPool(t *testing.T, cfg engine.Config, loader *fakeLoader) (*engine.Pool, *engine.Handle) {
	t.Helper()
	pool := engine.NewPool(cfg, logger.NewNop(), nil)
	h, err := pool.Register(engine.Profile{Name: "fake", Version: "1"}, loader.load)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool, h
}

func TestHandle_SingleFlight(t *testing.T) {
	loader := &fakeLoader{next: func() *fakeModel { return &fakeModel{delay: 20 * time.Millisecond} }}
	pool, h := newPool(t, engine.Config{}, loader)
	if err := pool.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Detect(context.Background(), "John", "en"); err != nil {
				t.Errorf("Detect: %v", err)
			}
		}()
	}
	wg.Wait()

	m := loader.model(0)
	if got := m.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent calls = %d, want 1", got)
	}
	if got := m.calls.Load(); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
}

func TestHandle_TimeoutRestartsStalledInstance(t *testing.T) {
	first := true
	loader := &fakeLoader{next: func() *fakeModel {
		if first {
			first = false
			return &fakeModel{delay: 200 * time.Millisecond, ignoreCtx: true}
		}
		return &fakeModel{}
	}}
	pool, h := newPool(t, engine.Config{RestartOnStall: true}, loader)
	if err := pool.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Detect(ctx, "text", "en")
	if !errors.Is(err, domain.ErrEngineTimeout) {
		t.Fatalf("expected ErrEngineTimeout, got %v", err)
	}
	var failure *domain.EngineFailure
	if !errors.As(err, &failure) || failure.Processor != "fake" {
		t.Errorf("expected EngineFailure for fake, got %v", err)
	}

	stale := loader.model(0)
	if stale.closed.Load() {
		t.Error("stalled instance closed before its call drained")
	}

	// The replacement serves calls while the stale one is still busy.
	if _, err = h.Detect(context.Background(), "text", "en"); err != nil {
		t.Fatalf("Detect after restart: %v", err)
	}
	if loader.loads() < 2 {
		t.Errorf("expected a fresh instance, loads = %d", loader.loads())
	}

	deadline := time.Now().Add(2 * time.Second)
	for !stale.closed.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !stale.closed.Load() {
		t.Error("stalled instance never closed after draining")
	}
	if got := h.Status().Restarts; got != 1 {
		t.Errorf("restarts = %d, want 1", got)
	}
}

func TestHandle_EngineErrorMarksUnhealthyUntilHealthCheck(t *testing.T) {
	model := &fakeModel{detectErr: errors.New("tagger crashed")}
	loader := &fakeLoader{next: func() *fakeModel { return model }}
	pool, h := newPool(t, engine.Config{}, loader)
	if err := pool.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err := h.Detect(context.Background(), "text", "en")
	if !errors.Is(err, domain.ErrEngineError) {
		t.Fatalf("expected ErrEngineError, got %v", err)
	}
	if h.Available() {
		t.Fatal("handle should be unavailable after an engine error")
	}

	_, err = h.Detect(context.Background(), "text", "en")
	if !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if calls := model.calls.Load(); calls != 1 {
		t.Errorf("unhealthy handle reached the model: %d calls", calls)
	}

	unhealthy := errors.New("still down")
	model.healthErr.Store(&unhealthy)
	if failures := pool.CheckHealth(context.Background()); failures["fake"] == nil {
		t.Fatal("expected failing health check")
	}
	if h.Available() {
		t.Fatal("failed health check must not restore the handle")
	}

	model.healthErr.Store(nil)
	if failures := pool.CheckHealth(context.Background()); len(failures) != 0 {
		t.Fatalf("unexpected health failures: %v", failures)
	}
	if !h.Available() {
		t.Fatal("passing health check should restore the handle")
	}
}

func TestPool_EagerLoadFailure(t *testing.T) {
	loader := &fakeLoader{loadErr: errors.New("model file missing"), next: func() *fakeModel { return &fakeModel{} }}
	pool, h := newPool(t, engine.Config{}, loader)

	if err := pool.Init(context.Background()); err == nil {
		t.Fatal("expected load error from Init")
	}
	if h.Available() {
		t.Fatal("engine that failed to load must be unavailable")
	}
	if _, err := h.Detect(context.Background(), "x", "en"); !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}

	loader.mu.Lock()
	loader.loadErr = nil
	loader.mu.Unlock()
	if failures := pool.CheckHealth(context.Background()); len(failures) != 0 {
		t.Fatalf("health check should load the engine: %v", failures)
	}
	if !h.Available() {
		t.Fatal("engine should be available after loading")
	}
}

func TestPool_LazyLoadsOnFirstCall(t *testing.T) {
	loader := &fakeLoader{next: func() *fakeModel { return &fakeModel{} }}
	pool, h := newPool(t, engine.Config{Lazy: true}, loader)

	if err := pool.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if loader.loads() != 0 {
		t.Fatal("lazy pool loaded at Init")
	}
	if !h.Available() {
		t.Fatal("unloaded lazy engine should be available")
	}
	if _, err := h.Detect(context.Background(), "x", "en"); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, err := h.Detect(context.Background(), "x", "en"); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if loader.loads() != 1 {
		t.Errorf("loads = %d, want 1", loader.loads())
	}
}

func TestPool_CloseStopsReloads(t *testing.T) {
	loader := &fakeLoader{next: func() *fakeModel { return &fakeModel{} }}
	pool, h := newPool(t, engine.Config{}, loader)
	if err := pool.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !loader.model(0).closed.Load() {
		t.Error("model not closed")
	}
	if h.Available() {
		t.Error("closed engine reported available")
	}

	_, err := h.Detect(context.Background(), "x", "en")
	if !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if loader.loads() != 1 {
		t.Errorf("loads = %d, want 1 after close", loader.loads())
	}
}

func TestHandle_Cancellation(t *testing.T) {
	loader := &fakeLoader{next: func() *fakeModel { return &fakeModel{delay: time.Second} }}
	pool, h := newPool(t, engine.Config{}, loader)
	if err := pool.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := h.Detect(ctx, "x", "en")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrEngineTimeout) {
		t.Error("cancellation must not be reported as a timeout")
	}
	if !h.Available() {
		t.Error("cancellation must not mark the engine unhealthy")
	}
}

func TestPool_RegisterDuplicate(t *testing.T) {
	pool := engine.NewPool(engine.Config{}, logger.NewNop(), nil)
	load := func(context.Context) (engine.Model, error) { return &fakeModel{}, nil }
	if _, err := pool.Register(engine.Profile{Name: "a"}, load); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Register(engine.Profile{Name: "a"}, load); !errors.Is(err, engine.ErrDuplicateEngine) {
		t.Fatalf("expected ErrDuplicateEngine, got %v", err)
	}
	if names := pool.Names(); len(names) != 1 || names[0] != "a" {
		t.Errorf("names = %v", names)
	}
}

func TestPool_ObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	pool := engine.NewPool(engine.Config{}, logger.NewNop(), func(name string, from, to engine.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, name+":"+from.String()+"->"+to.String())
	})
	model := &fakeModel{detectErr: errors.New("boom")}
	h, err := pool.Register(engine.Profile{Name: "obs"}, func(context.Context) (engine.Model, error) { return model, nil })
	if err != nil {
		t.Fatal(err)
	}
	_, _ = h.Detect(context.Background(), "x", "en")
	pool.CheckHealth(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []string{"obs:healthy->unhealthy", "obs:unhealthy->healthy"}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}
