package qsensor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Acquisition counters, registered on the default registry. cmd/qsensor
// exposes them via promhttp; library users get them for free once any
// controller is running.
var (
	readingsBuffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qsensor_readings_buffered_total",
		Help: "Readings parsed and appended to the ring buffer.",
	}, []string{"mode"})

	parseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qsensor_parse_failures_total",
		Help: "Data lines that failed to parse in a reader loop.",
	}, []string{"mode"})

	menuTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsensor_menu_timeouts_total",
		Help: "Menu prompts or confirmations that did not arrive in time.",
	})

	bufferEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsensor_buffer_evictions_total",
		Help: "Oldest readings evicted from a full ring buffer.",
	})
)
