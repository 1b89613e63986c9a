package timings

import "time"

// Pipeline ties the enable switch, reporter, frame window and sample history
// together. Reporter may be used from any goroutine; Tick and History belong
// to the single goroutine driving the frame loop.
type Pipeline struct {
	enabled  *Switch
	reporter *Reporter
	window   *Window
	history  *History
}

// Option customises a Pipeline.
type Option func(*options)

type options struct {
	enabled     bool
	historySize int
	clock       func() time.Time
}

// WithEnabled sets the initial state of the enable switch. Pipelines start
// disabled.
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// WithHistorySize overrides MaxSamples.
func WithHistorySize(size int) Option {
	return func(o *options) { o.historySize = size }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New builds a pipeline with an open frame and an empty history.
func New(opts ...Option) *Pipeline {
	o := options{historySize: MaxSamples, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	sw := &Switch{}
	sw.SetEnabled(o.enabled)

	return &Pipeline{
		enabled: sw,
		reporter: &Reporter{
			enabled: sw,
			queue:   &eventQueue{},
			now:     o.clock,
		},
		window:  NewWindow(),
		history: NewHistory(o.historySize),
	}
}

func (p *Pipeline) Switch() *Switch {
	return p.enabled
}

func (p *Pipeline) Reporter() *Reporter {
	return p.reporter
}

func (p *Pipeline) History() *History {
	return p.history
}

// InFlight reports how many frames the window is tracking.
func (p *Pipeline) InFlight() int {
	return p.window.Len()
}

// TickResult summarises one Tick.
type TickResult struct {
	Events   int
	Finished []FrameTimings
	InFlight int
}

// Tick drains every queued event, routes the batch through the frame window
// and appends finished frames to the history. It does nothing outside
// ScopeApp so a nested context sharing the reporter cannot process events twice.
func (p *Pipeline) Tick(scope Scope) TickResult {
	if scope != ScopeApp {
		return TickResult{}
	}

	events := p.reporter.queue.drain()
	if len(events) == 0 {
		return TickResult{InFlight: p.window.Len()}
	}

	finished := p.window.Process(events)
	for _, sample := range finished {
		p.history.Push(sample)
	}

	return TickResult{
		Events:   len(events),
		Finished: finished,
		InFlight: p.window.Len(),
	}
}
