// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIterationsTotalCounter(t *testing.T) {
	initial := testutil.ToFloat64(IterationsTotal)
	IterationsTotal.Inc()
	final := testutil.ToFloat64(IterationsTotal)

	if final <= initial {
		t.Errorf("IterationsTotal should have increased, got %v -> %v", initial, final)
	}
}

func TestIterationFailuresByKind(t *testing.T) {
	initial := testutil.ToFloat64(IterationFailures.WithLabelValues("timeout"))
	IterationFailures.WithLabelValues("timeout").Inc()
	IterationFailures.WithLabelValues("parse").Inc()

	if got := testutil.ToFloat64(IterationFailures.WithLabelValues("timeout")); got != initial+1 {
		t.Errorf("IterationFailures[timeout] = %v, want %v", got, initial+1)
	}
}

func TestNextIntervalGauge(t *testing.T) {
	NextInterval.Set(60)
	if value := testutil.ToFloat64(NextInterval); value != 60 {
		t.Errorf("NextInterval = %v, want 60", value)
	}

	NextInterval.Set(10)
	if value := testutil.ToFloat64(NextInterval); value != 10 {
		t.Errorf("NextInterval = %v, want 10", value)
	}
}

func TestInfluxDBWriteCounters(t *testing.T) {
	writes := testutil.ToFloat64(InfluxDBWritesTotal)
	errs := testutil.ToFloat64(InfluxDBWriteErrors)

	InfluxDBWritesTotal.Inc()
	InfluxDBWriteErrors.Inc()

	if testutil.ToFloat64(InfluxDBWritesTotal) <= writes {
		t.Error("InfluxDBWritesTotal should have increased")
	}
	if testutil.ToFloat64(InfluxDBWriteErrors) <= errs {
		t.Error("InfluxDBWriteErrors should have increased")
	}
}

func TestDurationHistograms(t *testing.T) {
	FetchDuration.Observe(0.12)
	WriteDuration.Observe(0.03)

	if testutil.CollectAndCount(FetchDuration) == 0 {
		t.Error("FetchDuration histogram should have observations")
	}
	if testutil.CollectAndCount(WriteDuration) == 0 {
		t.Error("WriteDuration histogram should have observations")
	}
}

func TestCurrentValueGaugeVec(t *testing.T) {
	CurrentValue.WithLabelValues("delock-0580", "voltage").Set(231.0)

	metric, err := CurrentValue.GetMetricWithLabelValues("delock-0580", "voltage")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	if value := testutil.ToFloat64(metric); value != 231.0 {
		t.Errorf("CurrentValue = %v, want 231.0", value)
	}
}

func TestLoopPhaseGaugeVec(t *testing.T) {
	LoopPhase.WithLabelValues("fetching").Set(1)
	LoopPhase.WithLabelValues("idle").Set(0)

	if got := testutil.ToFloat64(LoopPhase.WithLabelValues("fetching")); got != 1 {
		t.Errorf("LoopPhase[fetching] = %v, want 1", got)
	}
}

func TestMetricsAreRegistered(t *testing.T) {
	metrics := []prometheus.Collector{
		IterationsTotal,
		IterationFailures,
		ConsecutiveFailures,
		NextInterval,
		LastSuccess,
		LoopPhase,
		FetchDuration,
		InfluxDBWritesTotal,
		InfluxDBWriteErrors,
		WriteDuration,
		CircuitBreakerState,
		CurrentValue,
	}

	for i, metric := range metrics {
		if err := prometheus.Register(metric); err == nil {
			t.Errorf("Metric %d should already be registered with the default registry", i)
		}
	}
}
