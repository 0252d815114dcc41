package engine

import (
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the prometheus series the engine core emits, mirroring
// the asr/warmup/errors/lm modules of the original implementation's
// metrics.rs. NewMetrics registers these against the registry its caller
// passes in; httpapi exposes that registry over /metrics.
type Metrics struct {
	Connects       prometheus.Counter
	OpenChannels   prometheus.Gauge
	ModelStepSecs  prometheus.Histogram
	ConnNumSteps   prometheus.Histogram

	WarmupDuration prometheus.Histogram
	WarmupSuccess  prometheus.Counter
	WarmupFailure  prometheus.Counter
	WarmupSkipped  prometheus.Counter

	WSCloseTotal     *prometheus.CounterVec
	ConnectionErrors prometheus.Counter
	AuthErrors       prometheus.Counter

	LMStepSeconds      prometheus.Histogram
	LMTokensPerSecond  prometheus.Gauge
	LMBatchUtilization prometheus.Histogram
	LMQueueDepth       prometheus.Gauge

	// StreamBytesIn/Out and StreamMessagesIn/Out are nil unless the
	// MOSHI_STREAM_METRICS env var is set, keeping the per-message counter
	// increments zero-cost on deployments that don't want them.
	StreamBytesIn     prometheus.Counter
	StreamBytesOut    prometheus.Counter
	StreamMessagesIn  prometheus.Counter
	StreamMessagesOut prometheus.Counter
}

// streamMetricsEnabled reports whether MOSHI_STREAM_METRICS opts into the
// per-message WS byte/message counters.
func streamMetricsEnabled() bool {
	v, err := strconv.ParseBool(os.Getenv("MOSHI_STREAM_METRICS"))
	return err == nil && v
}

// NewMetrics constructs and registers every series against reg. Passing a
// fresh prometheus.NewRegistry() per engine instance is the convention used
// in tests to avoid collisions with the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asr", Name: "connect_total", Help: "Total number of accepted ASR connections.",
		}),
		OpenChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asr", Name: "open_channels", Help: "Number of currently occupied slots.",
		}),
		ModelStepSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asr", Name: "model_step_duration_seconds",
			Help:    "Wall time of one LM step over the batch.",
			Buckets: []float64{0.005, 0.010, 0.020, 0.030, 0.040, 0.050, 0.060, 0.070, 0.080, 0.100, 0.150, 0.200},
		}),
		ConnNumSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asr", Name: "connection_num_steps",
			Help:    "Number of pipeline steps in which a connection's slot was active.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),

		WarmupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warmup", Name: "duration_seconds", Help: "Time spent running warmup steps.",
		}),
		WarmupSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warmup", Name: "success_total", Help: "Warmup runs that completed without error.",
		}),
		WarmupFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warmup", Name: "failure_total", Help: "Warmup runs that returned an error (non-fatal to startup).",
		}),
		WarmupSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warmup", Name: "skipped_total", Help: "Warmup runs skipped by configuration.",
		}),

		WSCloseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "errors", Name: "ws_close_total", Help: "WebSocket closes by close code.",
		}, []string{"code"}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errors", Name: "connection_error_total", Help: "Non-auth connection errors.",
		}),
		AuthErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errors", Name: "auth_error_total", Help: "Authentication failures.",
		}),

		LMStepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lm", Name: "step_duration_seconds", Help: "Wall time of one LM batch step.",
		}),
		LMTokensPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lm", Name: "tokens_per_second", Help: "Aggregate text tokens emitted per second across the batch.",
		}),
		LMBatchUtilization: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lm", Name: "batch_utilization", Help: "Fraction of batch rows active on a given step.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		LMQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lm", Name: "queue_depth", Help: "Pending items in the encode to LM/post-process hand-off channel.",
		}),
	}

	reg.MustRegister(
		m.Connects, m.OpenChannels, m.ModelStepSecs, m.ConnNumSteps,
		m.WarmupDuration, m.WarmupSuccess, m.WarmupFailure, m.WarmupSkipped,
		m.WSCloseTotal, m.ConnectionErrors, m.AuthErrors,
		m.LMStepSeconds, m.LMTokensPerSecond, m.LMBatchUtilization, m.LMQueueDepth,
	)

	if streamMetricsEnabled() {
		m.StreamBytesIn = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stream", Name: "bytes_in_total", Help: "Raw bytes read off WS connections.",
		})
		m.StreamBytesOut = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stream", Name: "bytes_out_total", Help: "Raw bytes written to WS connections.",
		})
		m.StreamMessagesIn = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stream", Name: "messages_in_total", Help: "WS messages read.",
		})
		m.StreamMessagesOut = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stream", Name: "messages_out_total", Help: "WS messages written.",
		})
		reg.MustRegister(m.StreamBytesIn, m.StreamBytesOut, m.StreamMessagesIn, m.StreamMessagesOut)
	}

	return m
}

// RecordStreamIn accounts one inbound WS message, a no-op when stream
// metrics aren't enabled.
func (m *Metrics) RecordStreamIn(n int) {
	if m == nil || m.StreamBytesIn == nil {
		return
	}
	m.StreamBytesIn.Add(float64(n))
	m.StreamMessagesIn.Inc()
}

// RecordStreamOut accounts one outbound WS message, a no-op when stream
// metrics aren't enabled.
func (m *Metrics) RecordStreamOut(n int) {
	if m == nil || m.StreamBytesOut == nil {
		return
	}
	m.StreamBytesOut.Add(float64(n))
	m.StreamMessagesOut.Inc()
}

// RecordWSClose increments the close-code counter. code is the numeric
// close code as a string label (e.g. "1000", "4001").
func (m *Metrics) RecordWSClose(code string) {
	if m == nil {
		return
	}
	m.WSCloseTotal.WithLabelValues(code).Inc()
}
