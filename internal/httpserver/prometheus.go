package httpserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/frametimings-web/internal/sampler"
	"github.com/skobkin/frametimings-web/internal/timings"
)

type pipelineCollector struct {
	sampler *sampler.Manager
	metrics []pipelineMetric

	stageDesc   *prometheus.Desc
	latencyDesc *prometheus.Desc
	ageDesc     *prometheus.Desc
}

type pipelineMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	extract   func(stats sampler.Stats) float64
}

func newPipelineCollector(samplerManager *sampler.Manager) prometheus.Collector {
	if samplerManager == nil {
		return nil
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("frametimings", "pipeline", name),
			help,
			labels,
			nil,
		)
	}

	collector := &pipelineCollector{
		sampler: samplerManager,
		stageDesc: prometheus.NewDesc(
			prometheus.BuildFQName("frametimings", "frame", "stage_seconds"),
			"Time between consecutive recorded stages of the latest finished frame.",
			[]string{"from", "to"},
			nil,
		),
		latencyDesc: prometheus.NewDesc(
			prometheus.BuildFQName("frametimings", "frame", "latest_input_to_rendered_seconds"),
			"Input to render completion latency of the latest finished frame.",
			nil,
			nil,
		),
		ageDesc: desc("sample_age_seconds", "Seconds elapsed since the latest finished frame completed rendering."),
	}

	collector.metrics = []pipelineMetric{
		{
			desc:      desc("enabled", "Whether timing collection is enabled (1) or disabled (0)."),
			valueType: prometheus.GaugeValue,
			extract: func(stats sampler.Stats) float64 {
				if stats.Enabled {
					return 1
				}
				return 0
			},
		},
		{
			desc:      desc("ticks_total", "Pipeline ticks run in application scope."),
			valueType: prometheus.CounterValue,
			extract:   func(stats sampler.Stats) float64 { return float64(stats.Ticks) },
		},
		{
			desc:      desc("events_total", "Stage events drained from the queue."),
			valueType: prometheus.CounterValue,
			extract:   func(stats sampler.Stats) float64 { return float64(stats.Events) },
		},
		{
			desc:      desc("frames_completed_total", "Frames that reached render completion."),
			valueType: prometheus.CounterValue,
			extract:   func(stats sampler.Stats) float64 { return float64(stats.FramesCompleted) },
		},
		{
			desc:      desc("frames_in_flight", "Frames currently tracked by the window."),
			valueType: prometheus.GaugeValue,
			extract:   func(stats sampler.Stats) float64 { return float64(stats.InFlight) },
		},
		{
			desc:      desc("history_samples", "Finished frames retained in history."),
			valueType: prometheus.GaugeValue,
			extract:   func(stats sampler.Stats) float64 { return float64(stats.HistoryLen) },
		},
		{
			desc:      desc("subscribers", "Active live sample subscribers."),
			valueType: prometheus.GaugeValue,
			extract:   func(stats sampler.Stats) float64 { return float64(stats.Subscribers) },
		},
	}

	return collector
}

func (c *pipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
	ch <- c.stageDesc
	ch <- c.latencyDesc
	ch <- c.ageDesc
}

func (c *pipelineCollector) Collect(ch chan<- prometheus.Metric) {
	if c.sampler == nil {
		return
	}

	stats := c.sampler.Stats()
	for _, metric := range c.metrics {
		ch <- prometheus.MustNewConstMetric(metric.desc, metric.valueType, metric.extract(stats))
	}

	sample, ok := c.sampler.Latest()
	if !ok {
		return
	}
	for _, delta := range sample.Deltas() {
		ch <- prometheus.MustNewConstMetric(c.stageDesc, prometheus.GaugeValue,
			delta.Duration.Seconds(), delta.From.String(), delta.To.String())
	}
	if latency, ok := sample.InputToRendered(); ok {
		ch <- prometheus.MustNewConstMetric(c.latencyDesc, prometheus.GaugeValue, latency.Seconds())
	}
	if rendered, ok := sample.At(timings.RenderingFinished); ok {
		age := time.Since(rendered).Seconds()
		if age < 0 {
			age = 0
		}
		ch <- prometheus.MustNewConstMetric(c.ageDesc, prometheus.GaugeValue, age)
	}
}
