// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	AudioBytesIn    prometheus.Counter
	AudioBytesOut   prometheus.Counter
	BufferOverflows prometheus.Counter
	PipelineRuns    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
}

// New registers the gateway collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// registry so collectors never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "hanna_sessions_started_total",
			Help: "Voice sessions started.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hanna_sessions_active",
			Help: "Voice sessions currently connected.",
		}),
		AudioBytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "hanna_audio_bytes_in_total",
			Help: "Microphone audio bytes received.",
		}),
		AudioBytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "hanna_audio_bytes_out_total",
			Help: "Synthesized audio bytes sent.",
		}),
		BufferOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "hanna_audio_buffer_overflows_total",
			Help: "Audio buffers force-drained at the high watermark.",
		}),
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hanna_pipeline_runs_total",
			Help: "Voice pipeline runs by outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hanna_pipeline_stage_duration_seconds",
			Help:    "Duration of each voice pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
	}
}
