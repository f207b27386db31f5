package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/teamdraft/internal/domain"
)

// DraftMetrics holds Prometheus metrics for session mutations. A nil *DraftMetrics is a no-op.
type DraftMetrics struct {
	MutationsTotal   *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	Attempts         *prometheus.HistogramVec
	LockContention   *prometheus.CounterVec
	RetryBackoff     *prometheus.HistogramVec
	SessionsCreated  prometheus.Counter
	RetentionDeleted prometheus.Counter
}

func NewDraftMetrics(reg prometheus.Registerer) *DraftMetrics {
	m := &DraftMetrics{
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "mutations_total",
			Help:      "Total number of session mutations, by protocol, action and outcome.",
		}, []string{"protocol", "action", "outcome"}),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "mutation_duration_seconds",
			Help:      "Duration of session mutations including retries.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"protocol", "action"}),
		Attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "mutation_attempts",
			Help:      "Number of attempts needed per mutation.",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
		}, []string{"protocol"}),
		LockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "lock_contention_total",
			Help:      "Attempts that found the session claimed by another actor, by stage.",
		}, []string{"stage"}),
		RetryBackoff: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "retry_backoff_seconds",
			Help:      "Wait before retrying a contended mutation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5},
		}, []string{"protocol"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "sessions_created_total",
			Help:      "Total number of sessions started.",
		}),
		RetentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "retention_deleted_total",
			Help:      "Sessions removed by the retention sweep.",
		}),
	}

	reg.MustRegister(m.MutationsTotal, m.MutationDuration, m.Attempts, m.LockContention, m.RetryBackoff, m.SessionsCreated, m.RetentionDeleted)
	return m
}

// ObserveMutation records one finished mutation. outcome is "ok" or the rejection reason.
func (m *DraftMetrics) ObserveMutation(protocol string, action domain.Action, err error, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(domain.ReasonOf(err))
	}
	m.MutationsTotal.WithLabelValues(protocol, string(action), outcome).Inc()
	m.MutationDuration.WithLabelValues(protocol, string(action)).Observe(d.Seconds())
	if attempts > 0 {
		m.Attempts.WithLabelValues(protocol).Observe(float64(attempts))
	}
}

// Contended counts a lost race. stage is one of claimed, claim, verify or commit.
func (m *DraftMetrics) Contended(stage string) {
	if m == nil {
		return
	}
	m.LockContention.WithLabelValues(stage).Inc()
}

// Backoff records the wait before the next attempt of a contended mutation.
func (m *DraftMetrics) Backoff(protocol string, d time.Duration) {
	if m == nil {
		return
	}
	m.RetryBackoff.WithLabelValues(protocol).Observe(d.Seconds())
}

func (m *DraftMetrics) Created() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *DraftMetrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionDeleted.Add(float64(n))
}
