package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Modes reported by the mode gauge vector.
var modeLabels = []string{"running", "paused", "draining", "stopped"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	executionDuration prom.Histogram
	jobOutcome        *prom.CounterVec
	retries           prom.Counter
	merges            prom.Counter
	checkpoints       prom.Counter
	queueDepth        prom.Gauge
	activeExecutions  prom.Gauge
	concurrencyLimit  prom.Gauge
	mode              *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.executionDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildflow",
			Name:      "execution_duration_seconds",
			Help:      "Duration of individual job executions",
			Buckets:   prom.DefBuckets,
		})
		pr.jobOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildflow",
			Name:      "job_outcomes_total",
			Help:      "Terminal job outcomes by final status",
		}, []string{"outcome"})
		pr.retries = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildflow",
			Name:      "job_retries_total",
			Help:      "Total retry attempts scheduled after failed executions",
		})
		pr.merges = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildflow",
			Name:      "job_merges_total",
			Help:      "Submissions absorbed into an already-queued job",
		})
		pr.checkpoints = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildflow",
			Name:      "checkpoints_total",
			Help:      "Checkpoints taken by the orchestrator",
		})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildflow",
			Name:      "queue_depth",
			Help:      "Jobs currently waiting in the queue",
		})
		pr.activeExecutions = prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildflow",
			Name:      "active_executions",
			Help:      "Jobs currently executing",
		})
		pr.concurrencyLimit = prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildflow",
			Name:      "concurrency_limit",
			Help:      "Configured maximum concurrent executions",
		})
		pr.mode = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "buildflow",
			Name:      "mode",
			Help:      "Current orchestrator mode (1 for the active mode, 0 otherwise)",
		}, []string{"mode"})
		reg.MustRegister(pr.executionDuration, pr.jobOutcome, pr.retries, pr.merges, pr.checkpoints, pr.queueDepth, pr.activeExecutions, pr.concurrencyLimit, pr.mode)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveExecutionDuration(d time.Duration) {
	if p == nil || p.executionDuration == nil {
		return
	}
	p.executionDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobOutcome(outcome OutcomeLabel) {
	if p == nil || p.jobOutcome == nil {
		return
	}
	p.jobOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncJobRetry() {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.Inc()
}

func (p *PrometheusRecorder) IncJobMerged() {
	if p == nil || p.merges == nil {
		return
	}
	p.merges.Inc()
}

func (p *PrometheusRecorder) IncCheckpoint() {
	if p == nil || p.checkpoints == nil {
		return
	}
	p.checkpoints.Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetActiveExecutions(n int) {
	if p == nil || p.activeExecutions == nil {
		return
	}
	p.activeExecutions.Set(float64(n))
}

func (p *PrometheusRecorder) SetConcurrencyLimit(n int) {
	if p == nil || p.concurrencyLimit == nil {
		return
	}
	p.concurrencyLimit.Set(float64(n))
}

func (p *PrometheusRecorder) SetMode(mode string) {
	if p == nil || p.mode == nil {
		return
	}
	for _, m := range modeLabels {
		v := 0.0
		if m == mode {
			v = 1.0
		}
		p.mode.WithLabelValues(m).Set(v)
	}
}
