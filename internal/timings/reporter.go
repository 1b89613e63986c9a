package timings

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Switch turns event collection on and off. Reads may be slightly stale; the
// switch only gates sampling cost.
type Switch struct {
	enabled atomic.Bool
}

func (s *Switch) Enabled() bool {
	return s.enabled.Load()
}

func (s *Switch) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// eventQueue is an unbounded multi-producer, single-consumer FIFO.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if !q.closed {
		q.events = append(q.events, ev)
	}
	q.mu.Unlock()
}

// drain takes every queued event without waiting for more.
func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	batch := q.events
	q.events = make([]Event, 0, len(batch))
	return batch
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.events = nil
	q.mu.Unlock()
}

// Reporter is the producer side of a pipeline. It is safe for concurrent use
// and may be shared freely.
type Reporter struct {
	enabled *Switch
	queue   *eventQueue
	now     func() time.Time
}

// ReportEvent records that stage completed now. It is a no-op while collection
// is disabled or after the consumer has gone away.
func (r *Reporter) ReportEvent(stage Stage) {
	if !r.active() {
		return
	}
	r.queue.push(Event{Stage: stage, Time: r.clock()()})
}

// Report enqueues a pre-built event under the same rules as ReportEvent.
func (r *Reporter) Report(ev Event) {
	if !r.active() {
		return
	}
	r.queue.push(ev)
}

// Thin resolves the enabled state once and returns a handle that skips the
// check on every report.
func (r *Reporter) Thin() ThinReporter {
	if !r.active() {
		return ThinReporter{}
	}
	return ThinReporter{queue: r.queue, now: r.clock()}
}

// Close drops the consumer side. Later reports are absorbed.
func (r *Reporter) Close() {
	if r == nil || r.queue == nil {
		return
	}
	r.queue.close()
}

func (r *Reporter) clock() func() time.Time {
	if r.now == nil {
		return time.Now
	}
	return r.now
}

// active reports whether events should be queued. A zero Reporter is never
// active.
func (r *Reporter) active() bool {
	return r != nil && r.enabled != nil && r.queue != nil && r.enabled.Enabled()
}

// ThinReporter is a reporter pre-resolved to enabled or disabled. The zero
// value is disabled.
type ThinReporter struct {
	queue *eventQueue
	now   func() time.Time
}

func (t ThinReporter) Enabled() bool {
	return t.queue != nil
}

func (t ThinReporter) ReportEvent(stage Stage) {
	if t.queue == nil {
		return
	}
	t.queue.push(Event{Stage: stage, Time: t.now()})
}

func (t ThinReporter) Report(ev Event) {
	if t.queue == nil {
		return
	}
	t.queue.push(ev)
}

// Run reports started, runs fn, then reports finished.
func (t ThinReporter) Run(started, finished Stage, fn func()) {
	t.ReportEvent(started)
	fn()
	t.ReportEvent(finished)
}

// Step is a unit of pipeline work that can be bracketed by stage events.
type Step func(ctx context.Context) error

// Wrap returns a step that reports onStarted before and onFinished after
// running step. The finished event is reported even when step fails.
func Wrap(r *Reporter, step Step, onStarted, onFinished Stage) Step {
	return func(ctx context.Context) error {
		thin := r.Thin()
		thin.ReportEvent(onStarted)
		err := step(ctx)
		thin.ReportEvent(onFinished)
		return err
	}
}
