// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
)

// Reading is one snapshot of the nine energy measurements reported by the device.
// All fields are required; a Fetcher never returns a partial Reading.
type Reading struct {
	Power         float64 // Active power in watts
	Total         float64 // Cumulative energy in kWh
	Yesterday     float64 // Energy used yesterday in kWh
	Today         float64 // Energy used today in kWh
	ApparentPower float64 // Apparent power in VA
	ReactivePower float64 // Reactive power in VAr
	Factor        float64 // Power factor
	Voltage       float64 // Voltage in volts
	Current       float64 // Current in amperes
}

// Fetcher retrieves one Reading from the device.
type Fetcher interface {
	// Fetch issues a single request. It does not retry.
	Fetch(ctx context.Context) (*Reading, error)
}
