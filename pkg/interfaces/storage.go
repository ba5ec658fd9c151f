// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"time"
)

// DataPoint is one field of one Reading as written to the time-series store.
type DataPoint struct {
	Measurement string
	Tags        map[string]string
	Field       string
	Value       float64
	Timestamp   time.Time
}

// PointWriter persists a list of points in a single synchronous submission.
type PointWriter interface {
	// Write hands all points to the store and returns once the store has
	// accepted or rejected them.
	Write(ctx context.Context, points []DataPoint) error
}

// TimeSeriesStorage is a PointWriter that can also report its health.
type TimeSeriesStorage interface {
	PointWriter

	// Health checks if the storage backend is reachable and healthy
	Health(ctx context.Context) error
}
