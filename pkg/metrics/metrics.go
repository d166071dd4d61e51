package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IssuanceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licensing",
		Name:      "issuance_total",
		Help:      "Licence issuance attempts by result reason.",
	}, []string{"result"})

	IssuanceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "licensing",
		Name:      "issuance_duration_seconds",
		Help:      "Wall time of successful licence issuance.",
		Buckets:   prometheus.DefBuckets,
	})

	VerificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licensing",
		Name:      "verification_total",
		Help:      "Licence verifications by reported status.",
	}, []string{"status"})

	KeyCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "licensing",
		Name:      "key_cache_hits_total",
	})

	KeyCacheMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "licensing",
		Name:      "key_cache_miss_total",
	})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "licensing",
		Name:      "notifications_total",
		Help:      "Notification outbox transitions.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		IssuanceTotal,
		IssuanceDuration,
		VerificationTotal,
		KeyCacheHits,
		KeyCacheMiss,
		NotificationsTotal,
	)
}
