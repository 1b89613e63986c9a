package sampler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/skobkin/frametimings-web/internal/timings"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func reportFrame(r *timings.Reporter, startMS int) {
	for _, stage := range timings.Stages() {
		r.Report(timings.NewEvent(stage, epoch.Add(time.Duration(startMS+stage.Index())*time.Millisecond)))
	}
}

func newTestManager(t *testing.T, opts ...timings.Option) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewManager(timings.New(opts...), logger)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManagerTickAndReady(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, timings.WithEnabled(true))
	if manager.Ready() {
		t.Fatalf("manager should not be ready before the first frame")
	}

	reportFrame(manager.Reporter(), 0)
	manager.Tick(timings.ScopeClient)
	if manager.Ready() {
		t.Fatalf("client scope tick must not publish frames")
	}

	result := manager.Tick(timings.ScopeApp)
	if len(result.Finished) != 1 {
		t.Fatalf("expected one finished frame, got %d", len(result.Finished))
	}
	if !manager.Ready() {
		t.Fatalf("manager should be ready after a finished frame")
	}

	latest, ok := manager.Latest()
	if !ok || latest.Total() != 8*time.Millisecond {
		t.Fatalf("unexpected latest sample %v (ok=%v)", latest, ok)
	}

	stats := manager.Stats()
	if stats.Ticks != 1 || stats.Events != uint64(timings.StageCount) || stats.FramesCompleted != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.InFlight != 1 || stats.HistoryLen != 1 || stats.HistoryCap != timings.MaxSamples {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestManagerDisabledIsReady(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	if manager.Enabled() {
		t.Fatalf("pipeline should start disabled")
	}
	if !manager.Ready() {
		t.Fatalf("disabled manager should report ready")
	}

	manager.SetEnabled(true)
	if !manager.Enabled() || manager.Ready() {
		t.Fatalf("enabled manager without samples should not be ready")
	}
}

func TestManagerSubscribe(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, timings.WithEnabled(true))
	ch, unsubscribe, err := manager.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubscribe()

	reportFrame(manager.Reporter(), 0)
	manager.Tick(timings.ScopeApp)

	sample := awaitSample(t, ch)
	if sample.Total() != 8*time.Millisecond {
		t.Fatalf("unexpected sample %v", sample)
	}
	if got := manager.Stats().Subscribers; got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
}

func TestManagerDropsOldestOnBackpressure(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, timings.WithEnabled(true))
	ch, unsubscribe, err := manager.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		reportFrame(manager.Reporter(), i*20)
		manager.Tick(timings.ScopeApp)
	}

	latest := awaitSample(t, ch)
	start, _ := latest.At(timings.Input)
	if !start.Equal(epoch.Add(40 * time.Millisecond)) {
		t.Fatalf("expected newest frame, got frame starting at %v", start)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected queued sample %v", extra)
	default:
	}
}

func TestManagerClose(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, timings.WithEnabled(true))
	ch, _, err := manager.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Fatalf("subscriber channel should be closed")
	}
	if _, _, err := manager.Subscribe(); err == nil {
		t.Fatalf("Subscribe should fail after Close")
	}

	reportFrame(manager.Reporter(), 0)
	if result := manager.Tick(timings.ScopeApp); result.Events != 0 {
		t.Fatalf("closed reporter delivered %d events", result.Events)
	}
}

func awaitSample(t *testing.T, ch <-chan timings.FrameTimings) timings.FrameTimings {
	t.Helper()
	select {
	case sample, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return sample
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for sample")
		return timings.FrameTimings{}
	}
}
