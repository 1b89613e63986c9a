// Package sampler hosts the timing pipeline for the frame loop and shares its
// finished frames with readers on other goroutines.
package sampler

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/frametimings-web/internal/timings"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("sampler closed")

// Stats is a point-in-time view of pipeline activity.
type Stats struct {
	Enabled         bool   `json:"enabled"`
	Ticks           uint64 `json:"ticks"`
	Events          uint64 `json:"events"`
	FramesCompleted uint64 `json:"frames_completed"`
	InFlight        int    `json:"in_flight"`
	HistoryLen      int    `json:"history_len"`
	HistoryCap      int    `json:"history_cap"`
	Subscribers     int    `json:"subscribers"`
}

// Manager owns a timing pipeline. Tick is called by the frame loop; every
// other method may be called from any goroutine.
type Manager struct {
	pipeline *timings.Pipeline
	logger   *slog.Logger
	latency  prometheus.Histogram

	mu          sync.RWMutex
	stats       Stats
	subscribers map[*subscriber]struct{}
	closed      bool
	closeOnce   sync.Once
}

// NewManager wraps pipeline. A nil pipeline gets a default disabled one.
func NewManager(pipeline *timings.Pipeline, logger *slog.Logger) *Manager {
	if pipeline == nil {
		pipeline = timings.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pipeline: pipeline,
		logger:   logger.With("component", "sampler_manager"),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "frametimings",
			Subsystem: "frame",
			Name:      "input_to_rendered_seconds",
			Help:      "Latency from the first input sample to render completion per finished frame.",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2, 10),
		}),
		stats:       Stats{InFlight: pipeline.InFlight()},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Reporter returns the producer handle for instrumenting frame stages.
func (m *Manager) Reporter() *timings.Reporter {
	return m.pipeline.Reporter()
}

// Tick runs one pipeline tick and publishes any finished frames.
func (m *Manager) Tick(scope timings.Scope) timings.TickResult {
	m.mu.Lock()
	result := m.pipeline.Tick(scope)
	if scope == timings.ScopeApp {
		m.stats.Ticks++
		m.stats.Events += uint64(result.Events)
		m.stats.FramesCompleted += uint64(len(result.Finished))
		m.stats.InFlight = result.InFlight
	}

	var targets []*subscriber
	if len(result.Finished) > 0 {
		targets = make([]*subscriber, 0, len(m.subscribers))
		for sub := range m.subscribers {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sample := range result.Finished {
		if d, ok := sample.InputToRendered(); ok {
			m.latency.Observe(d.Seconds())
		}
		m.logger.Debug("frame finished", "total", sample.Total(), "stages", sample.String())
		for _, sub := range targets {
			sub.send(sample)
		}
	}

	return result
}

// Latest returns the most recently finished frame.
func (m *Manager) Latest() (timings.FrameTimings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipeline.History().Latest()
}

// Samples returns the retained history, oldest first.
func (m *Manager) Samples() []timings.FrameTimings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipeline.History().Samples()
}

// Capacity returns the history capacity.
func (m *Manager) Capacity() int {
	return m.pipeline.History().Cap()
}

// Enabled reports whether events are being collected.
func (m *Manager) Enabled() bool {
	return m.pipeline.Switch().Enabled()
}

// SetEnabled toggles event collection.
func (m *Manager) SetEnabled(enabled bool) {
	m.pipeline.Switch().SetEnabled(enabled)
	m.logger.Info("timing collection toggled", "enabled", enabled)
}

// Ready reports whether the manager has something to show: a finished frame,
// or collection switched off.
func (m *Manager) Ready() bool {
	if !m.Enabled() {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipeline.History().Len() > 0
}

// Stats returns activity counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := m.stats
	stats.Enabled = m.pipeline.Switch().Enabled()
	stats.HistoryLen = m.pipeline.History().Len()
	stats.HistoryCap = m.pipeline.History().Cap()
	stats.Subscribers = len(m.subscribers)
	return stats
}

// LatencyHistogram exposes the input-to-rendered histogram for registration.
func (m *Manager) LatencyHistogram() prometheus.Collector {
	return m.latency
}

// Subscribe registers a listener for finished frames. Slow listeners only see
// the newest frame.
func (m *Manager) Subscribe() (<-chan timings.FrameTimings, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}

	sub := newSubscriber()
	m.subscribers[sub] = struct{}{}

	unsubscribe := func() {
		m.removeSubscriber(sub)
	}
	return sub.channel(), unsubscribe, nil
}

func (m *Manager) removeSubscriber(sub *subscriber) {
	m.mu.Lock()
	delete(m.subscribers, sub)
	m.mu.Unlock()
	sub.close()
}

// Close stops event collection and releases subscribers. Safe for repeated use.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.pipeline.Reporter().Close()

		m.mu.Lock()
		m.closed = true
		subs := m.subscribers
		m.subscribers = make(map[*subscriber]struct{})
		m.mu.Unlock()

		for sub := range subs {
			sub.close()
		}
	})
	return nil
}

type subscriber struct {
	ch     chan timings.FrameTimings
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan timings.FrameTimings, 1),
	}
}

func (s *subscriber) channel() <-chan timings.FrameTimings {
	return s.ch
}

func (s *subscriber) send(sample timings.FrameTimings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- sample:
		return
	default:
		// Drop oldest to make room for new sample.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- sample:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
