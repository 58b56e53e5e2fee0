package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the invite service
type Metrics struct {
	// Invitation metrics
	AttemptsTotal   *prometheus.CounterVec
	RequestsTotal   prometheus.Counter
	RequestDuration prometheus.Histogram

	// Account pool metrics
	ActiveAccounts    prometheus.Gauge
	TotalAccounts     prometheus.Gauge
	FloodWaitsTotal   prometheus.Counter
	AccountsSuspended prometheus.Counter

	// Target metrics
	ActiveTargets       prometheus.Gauge
	MemberRefreshErrors prometheus.Counter
	MemberRefreshSweeps prometheus.Counter

	// Cooldown metrics
	CooldownRejections *prometheus.CounterVec

	// Audit stream metrics
	AuditPublished     prometheus.Counter
	AuditPublishErrors prometheus.Counter
}

// New creates a Metrics instance with all counters and gauges registered
// on the default registry
func New() *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memberly_invitation_attempts_total",
				Help: "Total number of invitation attempts by outcome",
			},
			[]string{"outcome"},
		),
		RequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_invite_requests_total",
			Help: "Total number of user invite requests processed",
		}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "memberly_invite_request_duration_seconds",
			Help:    "Duration of full multi-target invite requests in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ActiveAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "memberly_active_accounts",
			Help: "Current number of active pooled accounts",
		}),
		TotalAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "memberly_total_accounts",
			Help: "Total number of configured pooled accounts",
		}),
		FloodWaitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_flood_waits_total",
			Help: "Total number of provider flood waits received",
		}),
		AccountsSuspended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_account_suspensions_total",
			Help: "Total number of account suspensions",
		}),
		ActiveTargets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "memberly_active_targets",
			Help: "Current number of active invitation targets",
		}),
		MemberRefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_member_refresh_errors_total",
			Help: "Total number of failed member-count reads",
		}),
		MemberRefreshSweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_member_refresh_sweeps_total",
			Help: "Total number of member-count refresh sweeps",
		}),
		CooldownRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memberly_cooldown_rejections_total",
				Help: "Total number of requests rejected by cooldown gates",
			},
			[]string{"gate"},
		),
		AuditPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_audit_events_published_total",
			Help: "Total number of audit events published to the stream",
		}),
		AuditPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberly_audit_publish_errors_total",
			Help: "Total number of audit stream publish errors",
		}),
	}
}
