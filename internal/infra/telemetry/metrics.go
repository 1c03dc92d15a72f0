package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the counters the auth core emits. A single instance is
// constructed in main and injected into the services that record outcomes.
type Metrics struct {
	LoginAttempts    *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	MFAVerifications *prometheus.CounterVec
	SessionsEvicted  prometheus.Counter
	TokensIssued     *prometheus.CounterVec
	AuditWriteErrors prometheus.Counter
}

// NewMetrics builds and registers the counter set on the supplied registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "login_attempts_total",
			Help:      "Login attempts partitioned by outcome.",
		}, []string{"outcome"}),
		RateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "rate_limit_denials_total",
			Help:      "Admission checks denied, partitioned by scope.",
		}, []string{"scope"}),
		MFAVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "mfa_verifications_total",
			Help:      "MFA challenge verifications partitioned by method and outcome.",
		}, []string{"method", "outcome"}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "sessions_evicted_total",
			Help:      "Sessions revoked to enforce the per-user concurrency cap.",
		}),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "tokens_issued_total",
			Help:      "Tokens minted partitioned by purpose.",
		}, []string{"purpose"}),
		AuditWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "audit_write_errors_total",
			Help:      "Audit log writes that failed and were swallowed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LoginAttempts,
			m.RateLimitDenials,
			m.MFAVerifications,
			m.SessionsEvicted,
			m.TokensIssued,
			m.AuditWriteErrors,
		)
	}

	return m
}
