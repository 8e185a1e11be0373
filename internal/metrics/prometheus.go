package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	SignupTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_signups_total",
		Help: "Total number of accounts created.",
	})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	TokenRefreshTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_refreshes_total",
		Help: "Total number of successful refresh-token rotations.",
	})
	TokenRefreshFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_refresh_failures_total",
		Help: "Total number of rejected refresh attempts.",
	})
	TokenReuseTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detected_total",
		Help: "Total number of already-revoked refresh tokens presented again.",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter.",
	})
	LockoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockout_rejections_total",
		Help: "Total number of login attempts rejected by an active lockout.",
	})
	AuditWriteFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_audit_write_failures_total",
		Help: "Total number of audit entries that could not be persisted.",
	})
	// OpenSessionsGauge counts sessions opened by signup/login minus
	// explicit logouts. Rotation replaces a session and leaves the count
	// unchanged; sessions that lapse by expiry are never subtracted, so this
	// is an upper bound on live sessions, not an exact count.
	OpenSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_open_sessions",
		Help: "Sessions opened by signup/login minus explicit logouts. Expired sessions are not subtracted; treat as an upper bound on live sessions.",
	})
)

// Register registers the custom metrics on the given registry. It should be
// called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}
	collectors := []prometheus.Collector{
		SignupTotal, LoginSuccessTotal, LoginFailureTotal,
		TokenRefreshTotal, TokenRefreshFailTotal, TokenReuseTotal,
		RateLimitedTotal, LockoutTotal, AuditWriteFailureTotal,
		OpenSessionsGauge,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
