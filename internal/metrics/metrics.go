package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	updateAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "attempts_total",
			Help:      "Number of fetch-mutate-commit attempts.",
		}, []string{"machine", "package_manager"},
	)
	updateCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "commits_total",
			Help:      "Number of successful issue body commits.",
		}, []string{"machine", "package_manager"},
	)
	updateRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "retries_total",
			Help:      "Number of failed attempts followed by another attempt.",
		}, []string{"machine", "package_manager"},
	)
	updateExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "exhausted_total",
			Help:      "Number of updates that ran out of attempts.",
		}, []string{"machine", "package_manager"},
	)
	rowNotFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "not_found_total",
			Help:      "Number of updates addressed to a row missing from the document.",
		}, []string{"machine", "package_manager"},
	)
	attemptsPerUpdate = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "attempts_per_update",
			Help:      "Attempts used by one update call.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"machine", "package_manager"},
	)
	rowStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "swupdate",
			Subsystem: "row",
			Name:      "status",
			Help:      "Last committed status of a row (1 = current status, 0 = other).",
		}, []string{"machine", "package_manager", "status"},
	)
)

var statuses = []string{"pending", "running", "success", "failed"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{updateAttempts, updateCommits, updateRetries, updateExhausted, rowNotFound, attemptsPerUpdate, rowStatus}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncAttempt(machine, pm string) {
	if regOK.Load() {
		updateAttempts.WithLabelValues(machine, pm).Inc()
	}
}

func IncCommit(machine, pm string) {
	if regOK.Load() {
		updateCommits.WithLabelValues(machine, pm).Inc()
	}
}

func IncRetry(machine, pm string) {
	if regOK.Load() {
		updateRetries.WithLabelValues(machine, pm).Inc()
	}
}

func IncExhausted(machine, pm string) {
	if regOK.Load() {
		updateExhausted.WithLabelValues(machine, pm).Inc()
	}
}

func IncNotFound(machine, pm string) {
	if regOK.Load() {
		rowNotFound.WithLabelValues(machine, pm).Inc()
	}
}

func ObserveAttempts(machine, pm string, n int) {
	if regOK.Load() {
		attemptsPerUpdate.WithLabelValues(machine, pm).Observe(float64(n))
	}
}

// SetStatus marks status as the current one for the row and clears the others.
func SetStatus(machine, pm, status string) {
	if !regOK.Load() {
		return
	}
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		rowStatus.WithLabelValues(machine, pm, s).Set(v)
	}
}
