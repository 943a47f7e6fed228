package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "laundry_"

var (
	registerOnce sync.Once

	cyclesStarted   *prometheus.CounterVec
	cyclesCompleted prometheus.Counter
	cyclesStopped   *prometheus.CounterVec
	startConflicts  prometheus.Counter
	staleTimerFires prometheus.Counter

	feedSubscribers  prometheus.Gauge
	schedulerPending prometheus.Gauge

	httpRequests *prometheus.CounterVec
	pushResults  *prometheus.CounterVec
)

// Init registers the service metrics with the default registry. Calling it
// more than once is harmless; helpers are no-ops until Init has run.
func Init() {
	registerOnce.Do(func() {
		cyclesStarted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_started_total",
				Help: "Total cycles started by machine type",
			},
			[]string{"type"},
		)
		cyclesCompleted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_completed_total",
				Help: "Total cycles that ran to completion",
			},
		)
		cyclesStopped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_stopped_total",
				Help: "Total stop requests by actor",
			},
			[]string{"actor"},
		)
		startConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "start_conflicts_total",
				Help: "Start requests rejected because the machine was not available",
			},
		)
		staleTimerFires = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "stale_timer_fires_total",
				Help: "Completion timers that fired for a superseded cycle",
			},
		)
		feedSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "feed_subscribers",
				Help: "Current number of change feed subscribers",
			},
		)
		schedulerPending = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "scheduler_pending",
				Help: "Completion timers currently armed",
			},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		)
		pushResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_notifications_total",
				Help: "Web push deliveries by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			cyclesStarted,
			cyclesCompleted,
			cyclesStopped,
			startConflicts,
			staleTimerFires,
			feedSubscribers,
			schedulerPending,
			httpRequests,
			pushResults,
		)
	})
}

// IncCycleStarted counts a successful start on a machine of the given type.
func IncCycleStarted(machineType string) {
	if machineType == "" {
		machineType = "unknown"
	}
	if cyclesStarted != nil {
		cyclesStarted.WithLabelValues(machineType).Inc()
	}
}

// IncCycleCompleted counts a cycle flipped to done.
func IncCycleCompleted() {
	if cyclesCompleted != nil {
		cyclesCompleted.Inc()
	}
}

// IncCycleStopped counts a stop by "user" or "admin".
func IncCycleStopped(actor string) {
	if actor == "" {
		actor = "unknown"
	}
	if cyclesStopped != nil {
		cyclesStopped.WithLabelValues(actor).Inc()
	}
}

// IncStartConflict counts a start rejected with a conflict.
func IncStartConflict() {
	if startConflicts != nil {
		startConflicts.Inc()
	}
}

// IncStaleTimerFire counts a completion that found its cycle superseded.
func IncStaleTimerFire() {
	if staleTimerFires != nil {
		staleTimerFires.Inc()
	}
}

// SetFeedSubscribers records the number of live feed subscriptions.
func SetFeedSubscribers(n int) {
	if feedSubscribers != nil {
		feedSubscribers.Set(float64(n))
	}
}

// SetSchedulerPending records the number of armed completion timers.
func SetSchedulerPending(n int) {
	if schedulerPending != nil {
		schedulerPending.Set(float64(n))
	}
}

// IncHTTPRequest counts a finished HTTP request.
func IncHTTPRequest(route, status string) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, status).Inc()
	}
}

// IncPushResult counts a web push attempt by result ("sent", "expired", "error", "dropped").
func IncPushResult(result string) {
	if pushResults != nil {
		pushResults.WithLabelValues(result).Inc()
	}
}
