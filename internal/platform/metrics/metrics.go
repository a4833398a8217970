package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trust pipeline.
type Metrics struct {
	Verifications     *prometheus.CounterVec
	LivenessOutcomes  *prometheus.CounterVec
	FraudAttempts     *prometheus.CounterVec
	SpoofFlags        *prometheus.CounterVec
	BlockedRejections prometheus.Counter
	BackendLatency    prometheus.Histogram
	BackendFallbacks  prometheus.Counter
	LiveSessions      prometheus.Gauge
	SessionsReaped    prometheus.Counter
}

// New creates and registers all Prometheus metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_verifications_total",
			Help: "Identity verification calls by comparator mode and outcome",
		}, []string{"mode", "outcome"}),
		LivenessOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_liveness_outcomes_total",
			Help: "Terminal liveness session outcomes",
		}, []string{"status"}),
		FraudAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_fraud_attempts_total",
			Help: "Fraud attempts recorded by type, severity, and action taken",
		}, []string{"type", "severity", "action"}),
		SpoofFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_spoof_flags_total",
			Help: "Kinematic spoof detector flags raised",
		}, []string{"flag"}),
		BlockedRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_blocked_rejections_total",
			Help: "Attempts rejected at the lockout gate",
		}),
		BackendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_recognition_backend_seconds",
			Help:    "Latency of external recognition backend calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BackendFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_recognition_fallbacks_total",
			Help: "Verification calls that degraded to the fallback comparator",
		}),
		LiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_liveness_sessions_live",
			Help: "Liveness sessions currently in the live table",
		}),
		SessionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_liveness_sessions_reaped_total",
			Help: "Liveness sessions expired by the reaper",
		}),
	}
}

// ObserveBackendLatency records one external recognition call.
func (m *Metrics) ObserveBackendLatency(d time.Duration) {
	m.BackendLatency.Observe(d.Seconds())
}
