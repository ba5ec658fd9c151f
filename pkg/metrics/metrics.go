// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the energy collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IterationsTotal tracks the number of completed poll iterations
	IterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "energy_collector_iterations_total",
		Help: "Total number of poll iterations",
	})

	// IterationFailures tracks failed iterations by error kind
	IterationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_collector_iteration_failures_total",
		Help: "Total number of failed poll iterations by error kind",
	}, []string{"kind"})

	// ConsecutiveFailures tracks the current run of failed iterations
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_collector_consecutive_failures",
		Help: "Number of consecutive failed iterations",
	})

	// NextInterval tracks the wait selected after the last iteration
	NextInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_collector_next_interval_seconds",
		Help: "Wait before the next poll in seconds",
	})

	// LastSuccess tracks when a reading was last persisted
	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_collector_last_success_timestamp_seconds",
		Help: "Unix time of the last successfully persisted reading",
	})

	// LoopPhase is 1 for the phase the loop is currently in and 0 otherwise
	LoopPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "energy_collector_loop_phase",
		Help: "Current phase of the poll loop",
	}, []string{"phase"})

	// FetchDuration tracks how long a device fetch takes
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "energy_collector_fetch_duration_seconds",
		Help:    "Duration of device fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// InfluxDBWritesTotal tracks the total number of writes to InfluxDB
	InfluxDBWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "energy_collector_influxdb_writes_total",
		Help: "Total number of writes to InfluxDB",
	})

	// InfluxDBWriteErrors tracks the number of failed writes to InfluxDB
	InfluxDBWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "energy_collector_influxdb_write_errors_total",
		Help: "Total number of failed writes to InfluxDB",
	})

	// WriteDuration tracks how long a write to InfluxDB takes
	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "energy_collector_influxdb_write_duration_seconds",
		Help:    "Duration of InfluxDB writes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_collector_influxdb_circuit_breaker_state",
		Help: "State of the InfluxDB write circuit breaker (0 closed, 1 half-open, 2 open)",
	})

	// CurrentValue tracks the last value written per field
	CurrentValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "energy_collector_current_value",
		Help: "Last value read from the device per field",
	}, []string{"device", "field"})
)
