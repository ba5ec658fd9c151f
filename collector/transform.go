// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"time"

	"github.com/soothill/delock-energy-collector/pkg/interfaces"
)

const (
	// Measurement is the InfluxDB measurement every point is written to.
	Measurement = "powerconsumption"
	// DeviceTag is the tag key carrying the device identifier.
	DeviceTag = "device"
)

// FieldNames lists the point fields in the order ToPoints emits them.
var FieldNames = []string{
	"power",
	"total",
	"yesterday",
	"today",
	"apparentPower",
	"reactivePower",
	"factor",
	"voltage",
	"current",
}

// ToPoints maps one reading to nine data points sharing timestamp ts,
// truncated to the second. It has no side effects.
func ToPoints(reading interfaces.Reading, deviceID string, ts time.Time) []interfaces.DataPoint {
	ts = ts.Truncate(time.Second)

	values := [...]float64{
		reading.Power,
		reading.Total,
		reading.Yesterday,
		reading.Today,
		reading.ApparentPower,
		reading.ReactivePower,
		reading.Factor,
		reading.Voltage,
		reading.Current,
	}

	points := make([]interfaces.DataPoint, len(values))
	for i, v := range values {
		points[i] = interfaces.DataPoint{
			Measurement: Measurement,
			Tags:        map[string]string{DeviceTag: deviceID},
			Field:       FieldNames[i],
			Value:       v,
			Timestamp:   ts,
		}
	}
	return points
}
