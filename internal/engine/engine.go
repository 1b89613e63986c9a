// Package engine runs a synthetic pipelined frame loop that emits stage events
// the way a renderer would: most stages from the loop goroutine and render
// completion from a separate callback after a GPU delay.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/frametimings-web/internal/config"
	"github.com/skobkin/frametimings-web/internal/timings"
)

// TickFunc processes queued timing events for one execution scope.
type TickFunc func(scope timings.Scope) timings.TickResult

// userInputs cycles through the kinds of input the loop pretends to receive.
var userInputs = []timings.InputKind{
	timings.InputMouseMotion,
	timings.InputKeyboard,
	timings.InputMouseButton,
	timings.InputMouseWheel,
	timings.InputModifiersChanged,
}

// Engine drives frames at a fixed interval.
type Engine struct {
	cfg      config.EngineConfig
	reporter *timings.Reporter
	tick     TickFunc
	logger   *slog.Logger
	script   timings.Step

	frames  atomic.Uint64
	pending sync.WaitGroup

	// closed once the previous frame's render completion has been reported
	rendered chan struct{}
}

// Option customises an Engine.
type Option func(*Engine)

// WithScript replaces the per-frame scripting step.
func WithScript(step timings.Step) Option {
	return func(e *Engine) {
		if step != nil {
			e.script = step
		}
	}
}

// New builds an engine that reports into reporter and calls tick at the start
// of each frame.
func New(cfg config.EngineConfig, reporter *timings.Reporter, tick TickFunc, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg.FrameInterval <= 0 {
		return nil, fmt.Errorf("frame interval must be > 0")
	}
	if cfg.GPULatency < 0 {
		return nil, fmt.Errorf("gpu latency must be >= 0")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if tick == nil {
		return nil, fmt.Errorf("tick func is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		reporter: reporter,
		tick:     tick,
		logger:   logger.With("component", "engine"),
		script:   func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Run drives frames until the context is cancelled, then waits for
// outstanding render callbacks.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		"frame_interval", e.cfg.FrameInterval,
		"gpu_latency", e.cfg.GPULatency,
		"skip_render_callback", e.cfg.SkipRenderCallback,
	)

	ticker := time.NewTicker(e.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err(), "frames", e.frames.Load())
			e.pending.Wait()
			return ctx.Err()
		case <-ticker.C:
			e.Step(ctx)
		}
	}
}

// Step runs a single frame. Submission waits for the previous frame's render
// completion so at most two frames are in flight.
func (e *Engine) Step(ctx context.Context) {
	e.tick(timings.ScopeApp)
	e.tick(timings.ScopeClient)

	frame := e.frames.Add(1)

	for i := 0; i < e.cfg.InputsPerFrame; i++ {
		e.reporter.ReportInput(userInputs[(int(frame)+i)%len(userInputs)])
	}
	e.reporter.ReportInput(timings.InputRedraw)

	runScripts := timings.Wrap(e.reporter, e.script, timings.ScriptingStarted, timings.ScriptingFinished)
	if err := runScripts(ctx); err != nil {
		e.logger.Warn("script step failed", "frame", frame, "err", err)
	}

	e.runClientSystems()

	thin := e.reporter.Thin()
	thin.ReportEvent(timings.DrawingWorld)
	thin.ReportEvent(timings.DrawingUI)

	if e.rendered != nil {
		select {
		case <-e.rendered:
		case <-ctx.Done():
			e.logger.Debug("frame abandoned before submission", "frame", frame)
			return
		}
	}
	thin.ReportEvent(timings.SubmittingGPUCommands)

	if e.cfg.SkipRenderCallback {
		thin.ReportEvent(timings.RenderingFinished)
		return
	}

	rendered := make(chan struct{})
	e.rendered = rendered
	e.pending.Add(1)
	time.AfterFunc(e.cfg.GPULatency, func() {
		defer e.pending.Done()
		thin.ReportEvent(timings.RenderingFinished)
		close(rendered)
	})
}

// Frames returns the number of frames started so far.
func (e *Engine) Frames() uint64 {
	return e.frames.Load()
}

// Wait blocks until every scheduled render callback has fired.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) runClientSystems() {
	started := timings.ClientSystemsStartedMarker()
	finished := timings.ClientSystemsFinishedMarker()

	started.Run(timings.ScopeClient, e.reporter)
	finished.Run(timings.ScopeClient, e.reporter)
}
