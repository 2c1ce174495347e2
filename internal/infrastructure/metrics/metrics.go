package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AccessDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_access_denied_total",
			Help: "Requests rejected by credential or authorization checks",
		},
		[]string{"code"}, // INVALID_TOKEN|TOKEN_EXPIRED|TENANT_REQUIRED|INSUFFICIENT_PERMISSIONS|TENANT_SUSPENDED
	)

	QuotaIncrementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_quota_increments_total",
			Help: "Quota counter increments by resource",
		},
		[]string{"resource"},
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_quota_rejections_total",
			Help: "Operations rejected because the tenant quota was exhausted",
		},
		[]string{"resource"},
	)

	UnsafeQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_unsafe_queries_total",
			Help: "Queries executed through the tenant-check bypass",
		},
	)

	AuditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_audit_entries_total",
			Help: "Audit entries by outcome",
		},
		[]string{"outcome"}, // written|failed|dropped
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AccessDeniedTotal,
		QuotaIncrementsTotal,
		QuotaRejectionsTotal,
		UnsafeQueriesTotal,
		AuditEntriesTotal,
		RateLimitedTotal,
	)
}
