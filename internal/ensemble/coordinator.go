// Package ensemble runs the selected processors for a chapter, reconciles
// their candidates and returns the ranked descriptions.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/cache"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/merge"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/processors"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/selector"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/telemetry"
)

const (
	defaultDeadline          = 30 * time.Second
	defaultMaxConcurrentJobs = 8
	defaultBatchConcurrency  = 4
)

// Job outcomes reported to metrics.
const (
	outcomeOK     = "ok"
	outcomeCached = "cached"
	outcomeFailed = "failed"
)

// Config holds job defaults and concurrency limits.
type Config struct {
	Deadline          time.Duration
	MaxConcurrentJobs int
	BatchConcurrency  int
	// BatchRate limits batch job starts per second. Zero is unlimited.
	BatchRate  float64
	BatchBurst int
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Deadline == 0 {
		c.Deadline = defaultDeadline
	}
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.BatchConcurrency == 0 {
		c.BatchConcurrency = defaultBatchConcurrency
	}
	if c.BatchBurst == 0 {
		c.BatchBurst = 1
	}
}

// Deps are the collaborators of a Coordinator. Cache and Telemetry are optional.
type Deps struct {
	Adapters  []processors.Adapter
	Languages *domain.LanguageSet
	Selector  *selector.Selector
	Merger    *merge.Merger
	Cache     *cache.ResultCache
	Telemetry *telemetry.Provider
	Logger    logger.Logger
	// Priority orders adapters in decisions and reports. Unlisted adapters follow by name.
	Priority []string
}

// Coordinator is safe for concurrent use; each job keeps its own state.
type Coordinator struct {
	cfg       Config
	adapters  map[string]processors.Adapter
	order     []string
	languages *domain.LanguageSet
	selector  *selector.Selector
	merger    *merge.Merger
	cache     *cache.ResultCache
	telemetry *telemetry.Provider
	tracer    trace.Tracer
	logger    logger.Logger

	inFlight atomic.Int64
}

// New validates deps and builds a Coordinator.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	cfg.SetDefaults()
	if len(deps.Adapters) == 0 {
		return nil, errors.New("ensemble: no processors configured")
	}
	if deps.Selector == nil || deps.Merger == nil {
		return nil, errors.New("ensemble: selector and merger are required")
	}
	if deps.Languages == nil {
		langs, err := domain.NewLanguageSet(nil)
		if err != nil {
			return nil, err
		}
		deps.Languages = langs
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	adapters := make(map[string]processors.Adapter, len(deps.Adapters))
	for _, a := range deps.Adapters {
		if _, dup := adapters[a.Name()]; dup {
			return nil, fmt.Errorf("ensemble: duplicate processor %q", a.Name())
		}
		adapters[a.Name()] = a
	}

	var tracer trace.Tracer = noop.NewTracerProvider().Tracer("")
	if deps.Telemetry != nil {
		tracer = deps.Telemetry.Tracer
	}

	return &Coordinator{
		cfg:       cfg,
		tracer:    tracer,
		adapters:  adapters,
		order:     orderNames(adapters, deps.Priority),
		languages: deps.Languages,
		selector:  deps.Selector,
		merger:    deps.Merger,
		cache:     deps.Cache,
		telemetry: deps.Telemetry,
		logger:    deps.Logger,
	}, nil
}

func orderNames(adapters map[string]processors.Adapter, priority []string) []string {
	out := make([]string, 0, len(adapters))
	for _, name := range priority {
		if _, ok := adapters[name]; ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	var rest []string
	for name := range adapters {
		if !slices.Contains(out, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// Processors lists the configured processors in priority order.
func (c *Coordinator) Processors() []string {
	return slices.Clone(c.order)
}

// Result is a successful extraction.
type Result struct {
	Descriptions []domain.Description `json:"descriptions"`
	Report       JobReport            `json:"report"`
}

// JobReport explains how a job ran.
type JobReport struct {
	JobID         string              `json:"job_id"`
	Requested     domain.Mode         `json:"requested_mode"`
	Decision      domain.ModeDecision `json:"decision"`
	Language      string              `json:"language"`
	States        []domain.JobState   `json:"states"`
	CacheHit      bool                `json:"cache_hit"`
	CacheSource   string              `json:"cache_source,omitempty"`
	Adapters      []AdapterOutcome    `json:"adapters"`
	Candidates    int                 `json:"candidates"`
	Duration      time.Duration       `json:"duration"`
	FallbackUsed  bool                `json:"fallback_used"`
	ShortCircuit  bool                `json:"short_circuit"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// AdapterOutcome is one processor call within a job.
type AdapterOutcome struct {
	Processor  string        `json:"processor"`
	Outcome    string        `json:"outcome"`
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`

	failure    *domain.EngineFailure
	candidates []domain.RawCandidate
}

func (o AdapterOutcome) ok() bool {
	return o.failure == nil
}

// run is the mutable state of one job.
type run struct {
	report JobReport
	log    logger.Logger
}

func (r *run) transition(to domain.JobState) {
	from := r.report.States[len(r.report.States)-1]
	if !domain.CanTransition(from, to) {
		r.log.Error("Illegal job state transition",
			logger.String("from", string(from)),
			logger.String("to", string(to)),
		)
	}
	r.report.States = append(r.report.States, to)
	r.log.Debug("Job state changed",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
}

func (r *run) state() domain.JobState {
	return r.report.States[len(r.report.States)-1]
}

// ExtractDescriptions runs one chapter. It returns descriptions ranked by
// priority, or an *domain.ExtractionError.
func (c *Coordinator) ExtractDescriptions(ctx context.Context, job domain.ProcessingJob) (Result, error) {
	start := time.Now()
	load := c.enter(job.LoadSignal)
	defer c.leave()

	r := &run{report: JobReport{
		JobID:     uuid.NewString(),
		Requested: job.Mode,
		States:    []domain.JobState{domain.StatePending},
	}}
	r.log = c.logger.With(logger.String("job_id", r.report.JobID))

	ctx, span := c.startSpan(ctx, "extractor.job",
		attribute.String("job.id", r.report.JobID),
		attribute.Int("job.text_bytes", len(job.ChapterText)),
	)
	defer span.End()

	descs, err := c.execute(ctx, job, load, r)
	r.report.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, r.report.FailureReason)
	}
	span.SetAttributes(
		attribute.String("job.mode", string(r.report.Decision.Mode)),
		attribute.Bool("job.cache_hit", r.report.CacheHit),
		attribute.Int("job.descriptions", len(descs)),
	)
	c.finish(ctx, r, len(descs), err)

	if err != nil {
		return Result{Report: r.report}, err
	}
	return Result{Descriptions: descs, Report: r.report}, nil
}

func (c *Coordinator) execute(
	ctx context.Context, job domain.ProcessingJob, load float64, r *run,
) ([]domain.Description, error) {
	lang, mode, deadline, err := c.validate(job)
	if err != nil {
		return nil, c.fail(r, err, nil)
	}
	r.report.Requested = mode
	r.report.Language = lang

	if trivial(job.ChapterText) {
		r.report.ShortCircuit = true
		r.report.Decision = domain.ModeDecision{Mode: mode, Reason: "empty chapter text"}
		r.transition(domain.StateDone)
		return []domain.Description{}, nil
	}

	req := selector.Request{
		Mode:       mode,
		TextLength: utf8.RuneCountInString(job.ChapterText),
		Quality:    qualityOrDefault(job.QualityTarget),
		Load:       load,
		Available:  c.available(),
	}
	if len(req.Available) == 0 {
		// Results stored while every engine was healthy are still served.
		req.Available = c.order
		decision := c.selector.Decide(req)
		key := c.cacheKey(job, decision, lang)
		if descs, hit := c.lookup(ctx, key, r); hit {
			r.report.Decision = decision
			return descs, nil
		}
		failures := make([]*domain.EngineFailure, 0, len(c.order))
		for _, name := range c.order {
			failures = append(failures, domain.NewEngineFailure(name, domain.ErrEngineUnavailable, nil))
		}
		return nil, c.fail(r, domain.ErrAllEnginesFailed, failures)
	}

	decision := c.selector.Decide(req)
	r.report.Decision = decision
	if c.telemetry != nil {
		c.telemetry.RecordModeDecision(ctx, string(mode), string(decision.Mode))
	}

	key := c.cacheKey(job, decision, lang)
	if descs, hit := c.lookup(ctx, key, r); hit {
		return descs, nil
	}
	if c.cache != nil {
		c.recordCache(ctx, "miss")
	}

	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	r.transition(domain.StateDispatching)
	r.transition(domain.StateAwaitingResults)
	var outcomes []AdapterOutcome
	if decision.Concurrent {
		outcomes = c.runConcurrent(jobCtx, job.ChapterText, lang, decision.Processors)
	} else {
		outcomes = c.runSequential(jobCtx, job.ChapterText, lang, decision, r)
	}
	r.report.Adapters = outcomes

	if ctx.Err() != nil {
		return nil, c.fail(r, ctx.Err(), failuresOf(outcomes))
	}

	var candidates []domain.RawCandidate
	succeeded := 0
	for _, o := range outcomes {
		if o.ok() {
			succeeded++
			candidates = append(candidates, o.candidates...)
		}
	}
	if succeeded == 0 {
		return nil, c.fail(r, domain.ErrAllEnginesFailed, failuresOf(outcomes))
	}
	r.report.Candidates = len(candidates)

	r.transition(domain.StateMerging)
	descs := c.merger.Merge(job.ChapterText, candidates, merge.Options{
		Voting:        decision.Mode.Voting(),
		MinConfidence: job.MinConfidence,
		Language:      c.languages.Tag(lang),
	})
	r.transition(domain.StateScored)

	// Degraded results are not cached so a recovered engine is used next time.
	if succeeded == len(outcomes) && !r.report.FallbackUsed {
		c.cache.Put(ctx, key, descs)
	}
	r.transition(domain.StateDone)
	return descs, nil
}

func (c *Coordinator) cacheKey(job domain.ProcessingJob, decision domain.ModeDecision, lang string) string {
	return cache.Key(job.ChapterText, decision.Mode, c.versions(decision.Processors), lang, job.MinConfidence)
}

// lookup finishes the run from the cache when key is present.
func (c *Coordinator) lookup(ctx context.Context, key string, r *run) ([]domain.Description, bool) {
	descs, source, hit := c.cache.Get(ctx, key)
	if !hit {
		return nil, false
	}
	r.report.CacheHit = true
	r.report.CacheSource = string(source)
	c.recordCache(ctx, string(source))
	r.transition(domain.StateDone)
	return descs, true
}

func (c *Coordinator) validate(job domain.ProcessingJob) (string, domain.Mode, time.Duration, error) {
	lang, err := c.languages.Resolve(job.Language)
	if err != nil {
		return "", "", 0, err
	}
	mode, err := domain.ParseMode(string(job.Mode))
	if err != nil {
		return "", "", 0, err
	}
	if _, err = domain.ParseQualityTarget(string(job.QualityTarget)); err != nil {
		return "", "", 0, err
	}
	if job.MinConfidence < 0 || job.MinConfidence > 1 {
		return "", "", 0, fmt.Errorf("%w: min confidence %v outside [0,1]", domain.ErrInvalidJob, job.MinConfidence)
	}
	if job.Deadline < 0 {
		return "", "", 0, fmt.Errorf("%w: negative deadline", domain.ErrInvalidJob)
	}
	deadline := job.Deadline
	if deadline == 0 {
		deadline = c.cfg.Deadline
	}
	return lang, mode, deadline, nil
}

// trivial reports empty or whitespace-only text.
func trivial(text string) bool {
	return strings.TrimSpace(text) == ""
}

func qualityOrDefault(q domain.QualityTarget) domain.QualityTarget {
	if q == "" {
		return domain.QualityBalanced
	}
	return q
}

// available lists processors admitting calls, in priority order.
func (c *Coordinator) available() []string {
	out := make([]string, 0, len(c.order))
	for _, name := range c.order {
		if c.adapters[name].Available() {
			out = append(out, name)
		}
	}
	return out
}

func (c *Coordinator) versions(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = c.adapters[name].Version()
	}
	return out
}

// runConcurrent calls every processor at once. The pool is bounded to the
// number of distinct engines; each handle bounds its own wait by ctx.
func (c *Coordinator) runConcurrent(ctx context.Context, text, lang string, names []string) []AdapterOutcome {
	outcomes := make([]AdapterOutcome, len(names))

	var g errgroup.Group
	g.SetLimit(len(names))
	for i, name := range names {
		g.Go(func() error {
			outcomes[i] = c.call(ctx, name, text, lang)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runSequential calls the primary, then each fallback while the job is still live.
func (c *Coordinator) runSequential(
	ctx context.Context, text, lang string, decision domain.ModeDecision, r *run,
) []AdapterOutcome {
	plan := append(slices.Clone(decision.Processors), decision.Fallback...)
	var outcomes []AdapterOutcome
	for i, name := range plan {
		if ctx.Err() != nil {
			break
		}
		o := c.call(ctx, name, text, lang)
		outcomes = append(outcomes, o)
		if o.ok() {
			r.report.FallbackUsed = i > 0
			break
		}
		r.log.Warn("Processor failed, trying fallback",
			logger.String("processor", name),
			logger.String("reason", o.Outcome),
		)
	}
	return outcomes
}

// call runs one processor and classifies its failure.
func (c *Coordinator) call(ctx context.Context, name, text, lang string) AdapterOutcome {
	ctx, span := c.startSpan(ctx, "extractor.adapter", attribute.String("processor", name))
	defer span.End()

	start := time.Now()
	candidates, err := c.adapters[name].Extract(ctx, text, lang)
	o := AdapterOutcome{Processor: name, Duration: time.Since(start)}

	if err != nil {
		o.failure = asEngineFailure(ctx, name, err)
		o.Outcome = domain.FailureReason(o.failure)
		o.Error = o.failure.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, o.Outcome)
	} else {
		o.Outcome = outcomeOK
		o.candidates = candidates
		o.Candidates = len(candidates)
	}

	if c.telemetry != nil {
		c.telemetry.RecordAdapterCall(ctx, name, o.Outcome, o.Duration, o.Candidates)
	}
	return o
}

// asEngineFailure normalizes adapter errors that are not already classified.
func asEngineFailure(ctx context.Context, name string, err error) *domain.EngineFailure {
	var failure *domain.EngineFailure
	if errors.As(err, &failure) {
		return failure
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.NewEngineFailure(name, domain.ErrEngineTimeout, err)
	case ctx.Err() != nil:
		return domain.NewEngineFailure(name, ctx.Err(), err)
	default:
		return domain.NewEngineFailure(name, domain.ErrEngineError, err)
	}
}

func failuresOf(outcomes []AdapterOutcome) []*domain.EngineFailure {
	var out []*domain.EngineFailure
	for _, o := range outcomes {
		if o.failure != nil {
			out = append(out, o.failure)
		}
	}
	return out
}

// fail moves the job to Failed and builds its terminal error.
func (c *Coordinator) fail(r *run, err error, failures []*domain.EngineFailure) error {
	kind := err
	for _, sentinel := range []error{
		domain.ErrUnsupportedLanguage, domain.ErrInvalidJob, domain.ErrAllEnginesFailed,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			kind = sentinel
			break
		}
	}
	var cause error
	if kind != err {
		cause = err
	}

	state := r.state()
	r.transition(domain.StateFailed)
	r.report.FailureReason = domain.FailureReason(kind)
	return &domain.ExtractionError{
		JobID:    r.report.JobID,
		State:    state,
		Kind:     kind,
		Failures: failures,
		Err:      cause,
	}
}

// enter registers a running job and returns its load signal.
func (c *Coordinator) enter(override *float64) float64 {
	others := c.inFlight.Add(1) - 1
	if c.telemetry != nil {
		c.telemetry.IncInFlight()
	}
	if override != nil {
		return min(1, max(0, *override))
	}
	return min(1, float64(others)/float64(c.cfg.MaxConcurrentJobs))
}

func (c *Coordinator) leave() {
	c.inFlight.Add(-1)
	if c.telemetry != nil {
		c.telemetry.DecInFlight()
	}
}

// InFlight returns the number of running jobs.
func (c *Coordinator) InFlight() int {
	return int(c.inFlight.Load())
}

//nolint:spancheck // Caller is responsible for ending the span
func (c *Coordinator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (c *Coordinator) recordCache(ctx context.Context, result string) {
	if c.telemetry != nil {
		c.telemetry.RecordCacheLookup(ctx, result)
	}
}

// finish emits the job's completion log line and metrics.
func (c *Coordinator) finish(ctx context.Context, r *run, descriptions int, err error) {
	rep := &r.report
	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeFailed
	case rep.CacheHit:
		outcome = outcomeCached
	}

	adapters := make([]string, 0, len(rep.Adapters))
	for _, o := range rep.Adapters {
		adapters = append(adapters, o.Processor+"="+o.Outcome)
	}
	fields := []logger.Field{
		logger.String("requested_mode", string(rep.Requested)),
		logger.String("mode", string(rep.Decision.Mode)),
		logger.String("reason", rep.Decision.Reason),
		logger.String("language", rep.Language),
		logger.Strings("adapters", adapters),
		logger.Bool("cache_hit", rep.CacheHit),
		logger.Bool("fallback_used", rep.FallbackUsed),
		logger.Int("candidates", rep.Candidates),
		logger.Int("descriptions", descriptions),
		logger.Duration("duration", rep.Duration),
		logger.String("outcome", outcome),
	}
	if err != nil {
		fields = append(fields, logger.String("failure_reason", rep.FailureReason), logger.Error(err))
		r.log.Warn("Extraction job failed", fields...)
	} else {
		r.log.Info("Extraction job completed", fields...)
	}

	if c.telemetry == nil {
		return
	}
	mode := string(rep.Decision.Mode)
	if mode == "" {
		mode = string(rep.Requested)
	}
	c.telemetry.RecordJob(ctx, mode, outcome, rep.Duration, descriptions)
	if err != nil {
		c.telemetry.RecordJobFailure(ctx, rep.FailureReason)
	}
}
