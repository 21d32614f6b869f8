package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess   = "success"
	ResultTransient = "transient"
	ResultPermanent = "permanent"
	ResultQueued    = "queued"
	ResultSkipped   = "skipped"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter
	CounterMutations           *prometheus.CounterVec
	CounterRemoteAttempts      *prometheus.CounterVec
	CounterDiscardedEntries    prometheus.Counter
	CounterAlerts              *prometheus.CounterVec

	// gauges
	GaugeRequests         prometheus.Gauge
	GaugeLifeSignal       prometheus.Gauge
	GaugePendingQueueLen  prometheus.Gauge
	GaugePendingHeadAge   prometheus.Gauge
	GaugeUnsyncedRecords  prometheus.Gauge
	GaugeStaleQueueRaised prometheus.Gauge

	// histograms
	HistRemoteAttemptDuration *prometheus.HistogramVec
	HistogramRequestDuration  *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("gymsync", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("gymsync", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})
	counterMutations := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "mutations",
		Help:      "The total number of locally applied mutations",
	}, []string{"op", "entity"})
	counterRemoteAttempts := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remote_attempts",
		Help:      "The total number of remote persist attempts by outcome",
	}, []string{"op", "result"})
	counterDiscardedEntries := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_sync_discarded",
		Help:      "The total number of pending sync entries discarded on a permanent error",
	})
	counterAlerts := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "alerts",
		Help:      "The total number of user visible alerts raised",
	}, []string{"kind"})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})
	gaugePendingQueueLen := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_sync_queue_length",
		Help:      "Number of entries waiting in the pending sync queue",
	})
	gaugePendingHeadAge := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_sync_head_age_seconds",
		Help:      "Age of the oldest entry in the pending sync queue",
	})
	gaugeUnsyncedRecords := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "unsynced_records",
		Help:      "Number of local records not yet confirmed by the remote",
	})
	gaugeStaleQueueRaised := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_sync_stale",
		Help:      "Set to 1 while the head of the pending sync queue is older than the allowed age",
	})

	histRemoteAttemptDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remote_attempt_duration_seconds",
		Help:      "Duration of remote persist attempts in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"strategy"})
	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})

	return &Manager{
		CounterRequests:            counterRequests,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterRateLimitedRequests: counterRateLimitedRequests,
		CounterMutations:           counterMutations,
		CounterRemoteAttempts:      counterRemoteAttempts,
		CounterDiscardedEntries:    counterDiscardedEntries,
		CounterAlerts:              counterAlerts,
		GaugeRequests:              gaugeRequests,
		GaugeLifeSignal:            gaugeLifeSignal,
		GaugePendingQueueLen:       gaugePendingQueueLen,
		GaugePendingHeadAge:        gaugePendingHeadAge,
		GaugeUnsyncedRecords:       gaugeUnsyncedRecords,
		GaugeStaleQueueRaised:      gaugeStaleQueueRaised,
		HistRemoteAttemptDuration:  histRemoteAttemptDuration,
		HistogramRequestDuration:   histogramRequestDuration,
	}
}
