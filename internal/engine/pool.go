package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

const (
	defaultHealthInterval = 30 * time.Second
	defaultLoadTimeout    = 2 * time.Minute
)

// ErrDuplicateEngine is returned when two engines register under one name.
var ErrDuplicateEngine = errors.New("engine already registered")

// Config controls how the pool loads and supervises engines.
type Config struct {
	// Lazy defers loading each engine to its first call. Default: eager.
	Lazy bool `env:"EXTRACTOR_ENGINES_LAZY" yaml:"lazy"`
	// CallTimeout caps a single engine call below the job deadline. Zero means the job deadline only.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// LoadTimeout bounds eager and background loads. Default: 2m
	LoadTimeout time.Duration `yaml:"load_timeout"`
	// RestartOnStall swaps in a fresh instance when a call overruns its deadline.
	RestartOnStall bool `env:"EXTRACTOR_RESTART_ON_STALL" yaml:"restart_on_stall"`
	// HealthInterval is the period of the health loop. Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`
	// FailureThreshold is the consecutive engine errors that mark an engine unhealthy. Default: 1
	FailureThreshold int `yaml:"failure_threshold"`
	// RecoveryThreshold is the passing health checks needed to admit calls again. Default: 1
	RecoveryThreshold int `yaml:"recovery_threshold"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HealthInterval == 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if c.LoadTimeout == 0 {
		c.LoadTimeout = defaultLoadTimeout
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 1
	}
	if c.RecoveryThreshold == 0 {
		c.RecoveryThreshold = 1
	}
}

// StateObserver is notified of engine health transitions.
type StateObserver func(engine string, from, to State)

// Pool owns every Handle in the process.
type Pool struct {
	cfg      Config
	logger   logger.Logger
	observer StateObserver

	mu      sync.RWMutex
	handles map[string]*Handle
	order   []string
}

// NewPool creates an empty pool.
func NewPool(cfg Config, log logger.Logger, observer StateObserver) *Pool {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		cfg:      cfg,
		logger:   log,
		observer: observer,
		handles:  make(map[string]*Handle),
	}
}

// Register adds an engine. Nothing is loaded until Init or the first call.
func (p *Pool) Register(profile Profile, load Loader) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handles[profile.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEngine, profile.Name)
	}

	name := profile.Name
	h := &Handle{
		profile:        profile,
		load:           load,
		lazy:           p.cfg.Lazy,
		callTimeout:    p.cfg.CallTimeout,
		loadTimeout:    p.cfg.LoadTimeout,
		restartOnStall: p.cfg.RestartOnStall,
		logger:         p.logger.With(logger.String("engine", name)),
		loading:        make(chan struct{}, 1),
	}
	h.health = newHealthTracker(p.cfg.FailureThreshold, p.cfg.RecoveryThreshold, func(from, to State) {
		h.logger.Info("Engine health changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if p.observer != nil {
			p.observer(name, from, to)
		}
	})

	p.handles[name] = h
	p.order = append(p.order, name)
	return h, nil
}

// Handle looks up an engine by name.
func (p *Pool) Handle(name string) (*Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handles[name]
	return h, ok
}

// Names lists registered engines in registration order.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Init loads every engine unless the pool is lazy. Engines that fail to load
// are marked unhealthy and retried by the health loop; the joined load errors
// are returned for logging.
func (p *Pool) Init(ctx context.Context) error {
	if p.cfg.Lazy {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.LoadTimeout)
	defer cancel()

	var errs []error
	for _, h := range p.snapshot() {
		if _, err := h.current(ctx); err != nil {
			h.health.recordFailure(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckHealth probes every engine once and returns the failures by name.
func (p *Pool) CheckHealth(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, h := range p.snapshot() {
		if err := h.checkHealth(ctx); err != nil {
			failures[h.Name()] = err
		}
	}
	return failures
}

// Run probes engines every HealthInterval until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, p.cfg.HealthInterval)
			for name, err := range p.CheckHealth(checkCtx) {
				p.logger.Warn("Engine health check failed",
					logger.String("engine", name),
					logger.Error(err),
				)
			}
			cancel()
		}
	}
}

// Status lists every engine's state in registration order.
func (p *Pool) Status() []Status {
	handles := p.snapshot()
	out := make([]Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Status())
	}
	return out
}

// Close retires every instance and stops further loads. In-flight calls
// finish before their model closes.
func (p *Pool) Close() error {
	var errs []error
	for _, h := range p.snapshot() {
		if err := h.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) snapshot() []*Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Handle, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.handles[name])
	}
	return out
}
