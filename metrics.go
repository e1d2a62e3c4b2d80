package spc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "homekit_spc"

var requestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "client",
	Name:      "requests_total",
	Help:      "Requests sent to the panel with a session, by page",
}, []string{"page"})

var requestErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "client",
	Name:      "request_errors_total",
	Help:      "Failed requests, by kind of error",
}, []string{"kind"})

var loginCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "client",
	Name:      "logins_total",
	Help:      "Login attempts",
})

var loginErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "client",
	Name:      "login_errors_total",
	Help:      "Failed login attempts",
})

var pollCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "poller",
	Name:      "polls_total",
	Help:      "Polls run, scheduled or not",
})

var pollErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "poller",
	Name:      "poll_errors_total",
	Help:      "Failed polls, by kind of error",
}, []string{"kind"})

var pollSkippedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "poller",
	Name:      "skipped_ticks_total",
	Help:      "Ticks dropped because a poll was still running",
})

var pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "poller",
	Name:      "poll_duration_seconds",
	Help:      "How long polls take",
	Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20},
})

var parseWarningCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "parser",
	Name:      "dropped_zones_total",
	Help:      "Zones left out of a snapshot because of missing fields",
})
