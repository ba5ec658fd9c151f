// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage provides InfluxDB storage for energy data points.
//
// Every call creates its own InfluxDB client and closes it before
// returning, whether or not the call succeeded. Nothing is buffered:
// Write submits all points of one reading in a single blocking request
// and the store either accepts or rejects the whole batch.
//
// Writes pass through a circuit breaker. After a run of consecutive
// failures the breaker opens and Write fails fast, without contacting
// InfluxDB, until the breaker timeout has elapsed.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"
	"github.com/soothill/delock-energy-collector/collector"
	apperrors "github.com/soothill/delock-energy-collector/pkg/errors"
	"github.com/soothill/delock-energy-collector/pkg/interfaces"
	"github.com/soothill/delock-energy-collector/pkg/logger"
	"github.com/soothill/delock-energy-collector/pkg/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultHealthTimeout  = 5 * time.Second
)

// WriterConfig holds the InfluxDB connection and breaker settings.
type WriterConfig struct {
	URL          string
	Token        string
	Organization string
	Bucket       string

	// BreakerFailures is the number of consecutive failed writes that opens the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before letting a probe through.
	BreakerTimeout time.Duration
	// RequestTimeout bounds one HTTP request to InfluxDB.
	RequestTimeout time.Duration
}

// InfluxDBWriter writes data points to InfluxDB v2.
type InfluxDBWriter struct {
	cfg     WriterConfig
	breaker *gobreaker.CircuitBreaker
}

// NewInfluxDBWriter creates a writer. It does not contact InfluxDB.
func NewInfluxDBWriter(cfg WriterConfig) *InfluxDBWriter {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	w := &InfluxDBWriter{cfg: cfg}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "influxdb",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(breakerStateValue(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("InfluxDB circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.Set(breakerStateValue(gobreaker.StateClosed))

	return w
}

// newClient returns a client scoped to one call. Callers must Close it.
func (w *InfluxDBWriter) newClient() influxdb2.Client {
	opts := influxdb2.DefaultOptions().
		SetPrecision(time.Second).
		SetHTTPRequestTimeout(uint(w.cfg.RequestTimeout / time.Second))
	return influxdb2.NewClientWithOptions(w.cfg.URL, w.cfg.Token, opts)
}

// Write submits all points in one blocking request.
func (w *InfluxDBWriter) Write(ctx context.Context, points []interfaces.DataPoint) error {
	if len(points) == 0 {
		return nil
	}

	start := time.Now()
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.write(ctx, points)
	})
	metrics.WriteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.InfluxDBWriteErrors.Inc()
		var writeErr *apperrors.WriteError
		if errors.As(err, &writeErr) {
			return err
		}
		// gobreaker.ErrOpenState or ErrTooManyRequests
		return apperrors.NewWriteError(w.cfg.Bucket, len(points), err)
	}

	metrics.InfluxDBWritesTotal.Inc()
	logger.Debug().
		Str("bucket", w.cfg.Bucket).
		Int("points", len(points)).
		Dur("duration", time.Since(start)).
		Msg("Points written to InfluxDB")
	return nil
}

func (w *InfluxDBWriter) write(ctx context.Context, points []interfaces.DataPoint) error {
	client := w.newClient()
	defer client.Close()

	converted := make([]*write.Point, 0, len(points))
	for _, p := range points {
		converted = append(converted, toInfluxPoint(p))
	}

	writeAPI := client.WriteAPIBlocking(w.cfg.Organization, w.cfg.Bucket)
	if err := writeAPI.WritePoint(ctx, converted...); err != nil {
		return apperrors.NewWriteError(w.cfg.Bucket, len(points), err)
	}
	return nil
}

func toInfluxPoint(p interfaces.DataPoint) *write.Point {
	return influxdb2.NewPoint(
		p.Measurement,
		p.Tags,
		map[string]interface{}{p.Field: p.Value},
		p.Timestamp,
	)
}

// Health checks that InfluxDB answers its health endpoint with "pass".
func (w *InfluxDBWriter) Health(ctx context.Context) error {
	client := w.newClient()
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return apperrors.NewNetworkError("health", w.cfg.URL, err)
	}

	if health.Status != "pass" {
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", message)
	}
	return nil
}

// BreakerState returns the current circuit breaker state.
func (w *InfluxDBWriter) BreakerState() gobreaker.State {
	return w.breaker.State()
}

// QueryLatest retrieves the most recent reading written for deviceID and its timestamp.
func (w *InfluxDBWriter) QueryLatest(ctx context.Context, deviceID string) (*interfaces.Reading, time.Time, error) {
	if deviceID == "" {
		return nil, time.Time{}, fmt.Errorf("device ID cannot be empty")
	}

	client := w.newClient()
	defer client.Close()

	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -1h)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.%s == "%s")
			|> last()
	`, sanitizeFluxString(w.cfg.Bucket), collector.Measurement, collector.DeviceTag, sanitizeFluxString(deviceID))

	result, err := client.QueryAPI(w.cfg.Organization).Query(ctx, query)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	reading := &interfaces.Reading{}
	fields := map[string]*float64{
		"power":         &reading.Power,
		"total":         &reading.Total,
		"yesterday":     &reading.Yesterday,
		"today":         &reading.Today,
		"apparentPower": &reading.ApparentPower,
		"reactivePower": &reading.ReactivePower,
		"factor":        &reading.Factor,
		"voltage":       &reading.Voltage,
		"current":       &reading.Current,
	}

	var ts time.Time
	found := 0
	for result.Next() {
		record := result.Record()
		target, ok := fields[record.Field()]
		if !ok {
			continue
		}
		if val, ok := record.Value().(float64); ok {
			*target = val
			found++
		}
		if record.Time().After(ts) {
			ts = record.Time()
		}
	}

	if result.Err() != nil {
		return nil, time.Time{}, fmt.Errorf("query parsing failed: %w", result.Err())
	}
	if found == 0 {
		return nil, time.Time{}, fmt.Errorf("no readings for device %q", deviceID)
	}

	return reading, ts, nil
}

// maxFluxStringLen caps identifiers interpolated into Flux queries.
const maxFluxStringLen = 1000

// fluxEscaper escapes characters that could end a Flux string literal.
var fluxEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\x00", "",
)

// sanitizeFluxString makes s safe to embed inside a double-quoted Flux string.
func sanitizeFluxString(s string) string {
	if len(s) > maxFluxStringLen {
		s = s[:maxFluxStringLen]
	}
	return fluxEscaper.Replace(s)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
