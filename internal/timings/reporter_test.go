package timings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestReporterDisabledIsNoop(t *testing.T) {
	t.Parallel()

	p := New()
	r := p.Reporter()
	for i := 0; i < 100; i++ {
		r.ReportEvent(Stage(i % StageCount))
		r.Report(NewEvent(Input, at(i)))
		r.ReportInput(InputKeyboard)
	}
	r.Thin().ReportEvent(Input)

	if got := len(r.queue.drain()); got != 0 {
		t.Fatalf("disabled reporter queued %d events", got)
	}
}

func TestReporterUsesClock(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true), WithClock(fixedClock(at(42))))
	p.Reporter().ReportEvent(DrawingUI)

	events := p.Reporter().queue.drain()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Stage != DrawingUI || !events[0].Time.Equal(at(42)) {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestReporterClosedAbsorbsReports(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	r := p.Reporter()
	r.ReportEvent(Input)
	r.Close()
	r.ReportEvent(ScriptingStarted)
	r.Thin().ReportEvent(ScriptingFinished)

	if got := len(r.queue.drain()); got != 0 {
		t.Fatalf("closed reporter kept %d events", got)
	}

	var nilReporter *Reporter
	nilReporter.ReportEvent(Input)
	nilReporter.Close()
	if nilReporter.Thin().Enabled() {
		t.Fatalf("nil reporter produced an enabled thin handle")
	}
}

func TestZeroReporterIsNoop(t *testing.T) {
	t.Parallel()

	var r Reporter
	r.ReportEvent(Input)
	r.Report(NewEvent(Input, at(0)))
	r.ReportInput(InputKeyboard)
	if r.Thin().Enabled() {
		t.Fatalf("zero reporter produced an enabled thin handle")
	}
	r.Close()

	err := Wrap(&r, func(context.Context) error { return nil }, ScriptingStarted, ScriptingFinished)(context.Background())
	if err != nil {
		t.Fatalf("wrapped step: %v", err)
	}
}

func TestThinReporterResolvesOnce(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	thin := p.Reporter().Thin()
	if !thin.Enabled() {
		t.Fatalf("thin reporter should be enabled")
	}

	p.Switch().SetEnabled(false)
	thin.ReportEvent(Input)
	if got := len(p.Reporter().queue.drain()); got != 1 {
		t.Fatalf("thin reporter should ignore later switch changes, queued %d", got)
	}
	if p.Reporter().Thin().Enabled() {
		t.Fatalf("thin reporter taken while disabled should be disabled")
	}
}

func TestReporterConcurrentProducers(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	r := p.Reporter()

	const producers, perProducer = 8, 250
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				r.ReportEvent(Input)
			}
		}()
	}
	wg.Wait()

	if got := len(r.queue.drain()); got != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, got)
	}
}

func TestWrapReportsAroundStep(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	stepErr := errors.New("script failed")
	ran := false

	step := Wrap(p.Reporter(), func(ctx context.Context) error {
		ran = true
		return stepErr
	}, ScriptingStarted, ScriptingFinished)

	if err := step(context.Background()); !errors.Is(err, stepErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !ran {
		t.Fatalf("wrapped step did not run")
	}

	events := p.Reporter().queue.drain()
	if len(events) != 2 || events[0].Stage != ScriptingStarted || events[1].Stage != ScriptingFinished {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestThinReporterRun(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	order := []string{}
	p.Reporter().Thin().Run(DrawingWorld, DrawingUI, func() {
		order = append(order, "step")
	})

	events := p.Reporter().queue.drain()
	if len(order) != 1 || len(events) != 2 {
		t.Fatalf("unexpected run result: order=%v events=%d", order, len(events))
	}

	// disabled handle still runs the step
	called := false
	ThinReporter{}.Run(DrawingWorld, DrawingUI, func() { called = true })
	if !called {
		t.Fatalf("disabled thin reporter skipped the step")
	}
}

func TestReportInputFiltersNonUserEvents(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	r := p.Reporter()
	kinds := []InputKind{
		InputKeyboard, InputMouseButton, InputMouseWheel, InputMouseMotion, InputModifiersChanged,
		InputResize, InputFocus, InputRedraw,
	}
	for _, kind := range kinds {
		r.ReportInput(kind)
	}

	events := r.queue.drain()
	if len(events) != 5 {
		t.Fatalf("expected 5 user input events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Stage != Input {
			t.Fatalf("unexpected stage %s", ev.Stage)
		}
	}
}

func TestMarkerOnlyRunsInItsScope(t *testing.T) {
	t.Parallel()

	p := New(WithEnabled(true))
	started := ClientSystemsStartedMarker()
	finished := ClientSystemsFinishedMarker()

	started.Run(ScopeApp, p.Reporter())
	finished.Run(ScopeServer, p.Reporter())
	if got := len(p.Reporter().queue.drain()); got != 0 {
		t.Fatalf("markers reported outside client scope: %d", got)
	}

	started.Run(ScopeClient, p.Reporter())
	finished.Run(ScopeClient, p.Reporter())
	events := p.Reporter().queue.drain()
	if len(events) != 2 || events[0].Stage != ClientSystemsStarted || events[1].Stage != ClientSystemsFinished {
		t.Fatalf("unexpected marker events %+v", events)
	}
}
