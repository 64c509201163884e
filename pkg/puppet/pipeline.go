// Package puppet runs the tracking fusion pipeline: producers offer raw
// landmark batches, and a single animation clock arbitrates, extracts and
// smooths them into the AnimationState renderers draw.
package puppet

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-puppet/internal/timeutil"
	"github.com/teslashibe/go-puppet/pkg/arbiter"
	"github.com/teslashibe/go-puppet/pkg/landmarks"
	"github.com/teslashibe/go-puppet/pkg/smoothing"
)

// Renderer consumes the animation state once per tick.
type Renderer interface {
	Render(state smoothing.AnimationState, status Status)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(state smoothing.AnimationState, status Status)

// Render calls f.
func (f RendererFunc) Render(state smoothing.AnimationState, status Status) {
	f(state, status)
}

// Pipeline owns one puppet session.
type Pipeline struct {
	sessionID  string
	clock      timeutil.Clock
	logger     *slog.Logger
	interval   time.Duration
	normalizer landmarks.Normalizer

	arbiter  *arbiter.Arbiter
	smoother *smoothing.Smoother
	live     *live

	mu        sync.RWMutex
	demo      *smoothing.Demo // nil outside demo mode
	renderers []Renderer

	ticks   atomic.Uint64
	offered [2]atomic.Uint64 // per SourceID

	stepMu   sync.Mutex
	nextStep time.Time // StepTo schedule, zero until the first call
}

// New creates a pipeline. A nil clock uses the wall clock; a nil logger
// uses slog.Default().
func New(cfg Config, clock timeutil.Clock, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessionID := uuid.NewString()
	logger = logger.With("session", sessionID)

	arb, err := arbiter.New(cfg.Arbiter, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		sessionID:  sessionID,
		clock:      clock,
		logger:     logger.With("component", "puppet"),
		interval:   cfg.TickInterval,
		normalizer: landmarks.NewNormalizer(cfg.TargetWidth, cfg.TargetHeight),
		arbiter:    arb,
		smoother:   smoothing.New(),
		live:       newLive(arb, cfg),
	}
	if cfg.Demo {
		p.demo = smoothing.NewDemo(clock.Now())
	}
	return p, nil
}

// SessionID returns the unique id of this session.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// AddRenderer registers r to be called after every tick.
func (p *Pipeline) AddRenderer(r Renderer) {
	p.mu.Lock()
	p.renderers = append(p.renderers, r)
	p.mu.Unlock()
}

// Offer normalizes a producer batch and makes it the latest observation for
// its source. Safe to call from any goroutine.
func (p *Pipeline) Offer(raw landmarks.Raw) {
	obs := p.normalizer.Normalize(raw, p.clock.Now())
	p.arbiter.Observe(obs)

	if int(raw.Source) >= 0 && int(raw.Source) < len(p.offered) {
		p.offered[raw.Source].Add(1)
	}
	p.logger.Debug("observation",
		"source", raw.Source,
		"points", len(raw.Points),
		"missing", obs.Landmarks.Missing(),
		"quality_ok", raw.QualityOK)
}

// Tick runs one arbitration, extraction and smoothing step at now.
func (p *Pipeline) Tick(now time.Time) smoothing.AnimationState {
	p.mu.RLock()
	demo := p.demo
	p.mu.RUnlock()

	var state smoothing.AnimationState
	if demo != nil {
		// Arbitration still runs so the status display stays accurate.
		p.live.evaluate(now)
		state = p.smoother.Advance(demo, now)
	} else {
		state = p.smoother.Advance(p.live, now)
	}
	p.ticks.Add(1)
	return state
}

// State returns the current animation state.
func (p *Pipeline) State() smoothing.AnimationState {
	return p.smoother.State()
}

// Run ticks at the configured interval until ctx is cancelled, handing each
// state to the registered renderers.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("pipeline started", "tick_interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped", "ticks", p.ticks.Load())
			return

		case now := <-ticker.C():
			p.Step(now)
		}
	}
}

// Step runs one tick at now and hands the result to the renderers.
func (p *Pipeline) Step(now time.Time) smoothing.AnimationState {
	state := p.Tick(now)
	p.render(state, p.statusAt(now))
	return state
}

// StepTo runs every tick due at or before now, for callers that drive time
// themselves instead of calling Run. The first call anchors the schedule
// and ticks once. It returns the number of ticks run.
func (p *Pipeline) StepTo(now time.Time) int {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	if p.nextStep.IsZero() {
		p.nextStep = now
	}
	n := 0
	for !now.Before(p.nextStep) {
		p.Step(p.nextStep)
		p.nextStep = p.nextStep.Add(p.interval)
		n++
	}
	return n
}

func (p *Pipeline) render(state smoothing.AnimationState, status Status) {
	p.mu.RLock()
	renderers := p.renderers
	p.mu.RUnlock()

	for _, r := range renderers {
		r.Render(state, status)
	}
}
