package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var armStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "homekit_spc",
	Subsystem: "alarm",
	Name:      "state",
	Help:      "HomeKit current state of the security system",
})

var availableGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "homekit_spc",
	Subsystem: "alarm",
	Name:      "available",
	Help:      "Whether the panel is reachable",
})

var activeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_spc",
	Subsystem: "alarm",
	Name:      "active",
	Help:      "Whether the zone is actuated",
}, []string{"name"})

var tamperGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_spc",
	Subsystem: "alarm",
	Name:      "tamper",
	Help:      "Whether the zone reports tamper",
}, []string{"name"})

var inhibitedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_spc",
	Subsystem: "alarm",
	Name:      "inhibited",
	Help:      "Whether the zone is inhibited",
}, []string{"name"})

var commandErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "homekit_spc",
	Subsystem: "alarm",
	Name:      "command_errors_total",
	Help:      "Commands the panel did not confirm",
}, []string{"action"})

func boolToFloat(b bool) float64 {
	return boolAs[float64](b)
}

func boolToInt(b bool) int {
	return boolAs[int](b)
}

func boolAs[T int | float64](b bool) T {
	if b {
		return 1
	}
	return 0
}
