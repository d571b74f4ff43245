package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScoringMetrics records scoring and sweep activity. A nil *ScoringMetrics is a no-op.
type ScoringMetrics struct {
	outcomes      *prometheus.CounterVec
	duration      prometheus.Histogram
	sweeps        prometheus.Counter
	sweepFailures prometheus.Counter
	answers       *prometheus.CounterVec
}

// NewScoringMetrics registers the collectors on reg.
func NewScoringMetrics(reg prometheus.Registerer) (*ScoringMetrics, error) {
	m := &ScoringMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riddle_scoring_total",
			Help: "ScoreRiddle calls by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riddle_scoring_duration_seconds",
			Help:    "Duration of ScoreRiddle calls.",
			Buckets: prometheus.DefBuckets,
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riddle_sweep_runs_total",
			Help: "Completed sweeps over unscored riddles.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riddle_sweep_failures_total",
			Help: "Riddles a sweep failed to score.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riddle_answers_total",
			Help: "Answer submissions by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{m.outcomes, m.duration, m.sweeps, m.sweepFailures, m.answers} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveScoring records one ScoreRiddle call. result is the outcome status or "error".
func (m *ScoringMetrics) ObserveScoring(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}

// ObserveSweep records a finished sweep and how many riddles failed in it.
func (m *ScoringMetrics) ObserveSweep(failed int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.sweepFailures.Add(float64(failed))
}

// ObserveAnswer records a submission result ("accepted" or an error class).
func (m *ScoringMetrics) ObserveAnswer(result string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(result).Inc()
}
