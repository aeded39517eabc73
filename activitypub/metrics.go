package activitypub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// activitiesTotal counts inbound activities by kind and error class
	activitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inboxd",
		Subsystem: "inbox",
		Name:      "activities_total",
		Help:      "Inbound activities by kind and outcome",
	}, []string{"kind", "outcome"})

	// processingSeconds tracks how long an activity takes from verification to commit
	processingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inboxd",
		Subsystem: "inbox",
		Name:      "processing_seconds",
		Help:      "Activity processing duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"kind"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inboxd",
		Subsystem: "resolver",
		Name:      "fetches_total",
		Help:      "Remote object fetches by result",
	}, []string{"result"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inboxd",
		Subsystem: "resolver",
		Name:      "fetch_duration_seconds",
		Help:      "Remote fetch duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	// sharedFetchesTotal counts resolutions that joined a fetch already in flight
	sharedFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inboxd",
		Subsystem: "resolver",
		Name:      "shared_fetches_total",
		Help:      "Resolutions served by a shared in-flight fetch",
	})

	budgetExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inboxd",
		Subsystem: "resolver",
		Name:      "budget_exhausted_total",
		Help:      "Fetches refused because the per-activity budget was spent",
	})
)
