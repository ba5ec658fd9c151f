// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"reflect"
	"testing"
	"time"

	"github.com/soothill/delock-energy-collector/pkg/interfaces"
)

func sampleReading() interfaces.Reading {
	return interfaces.Reading{
		Power:         120.5,
		Total:         5032.1,
		Yesterday:     12.3,
		Today:         3.4,
		ApparentPower: 130.0,
		ReactivePower: 40.2,
		Factor:        0.92,
		Voltage:       231.0,
		Current:       0.52,
	}
}

func TestToPoints(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	points := ToPoints(sampleReading(), "delock-0580", ts)

	if len(points) != 9 {
		t.Fatalf("ToPoints() returned %d points, want 9", len(points))
	}

	want := []struct {
		field string
		value float64
	}{
		{"power", 120.5},
		{"total", 5032.1},
		{"yesterday", 12.3},
		{"today", 3.4},
		{"apparentPower", 130.0},
		{"reactivePower", 40.2},
		{"factor", 0.92},
		{"voltage", 231.0},
		{"current", 0.52},
	}

	for i, p := range points {
		if p.Measurement != "powerconsumption" {
			t.Errorf("points[%d].Measurement = %q, want powerconsumption", i, p.Measurement)
		}
		if p.Tags["device"] != "delock-0580" || len(p.Tags) != 1 {
			t.Errorf("points[%d].Tags = %v, want only device=delock-0580", i, p.Tags)
		}
		if p.Field != want[i].field {
			t.Errorf("points[%d].Field = %q, want %q", i, p.Field, want[i].field)
		}
		if p.Value != want[i].value {
			t.Errorf("points[%d].Value = %v, want %v", i, p.Value, want[i].value)
		}
		if !p.Timestamp.Equal(ts) {
			t.Errorf("points[%d].Timestamp = %v, want %v", i, p.Timestamp, ts)
		}
	}
}

func TestToPoints_TruncatesToSecond(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 987654321, time.UTC)

	for _, p := range ToPoints(sampleReading(), "delock-0580", ts) {
		if p.Timestamp.Nanosecond() != 0 {
			t.Fatalf("Timestamp %v not truncated to the second", p.Timestamp)
		}
		if p.Timestamp.Second() != 45 {
			t.Fatalf("Timestamp second = %d, want 45", p.Timestamp.Second())
		}
	}
}

func TestToPoints_Deterministic(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	first := ToPoints(sampleReading(), "delock-0580", ts)
	for i := 0; i < 10; i++ {
		if got := ToPoints(sampleReading(), "delock-0580", ts); !reflect.DeepEqual(first, got) {
			t.Fatalf("ToPoints() run %d differs:\n%v\n%v", i, first, got)
		}
	}
}

func TestToPoints_TagsNotShared(t *testing.T) {
	points := ToPoints(sampleReading(), "delock-0580", time.Now())
	points[0].Tags["device"] = "changed"

	if points[1].Tags["device"] != "delock-0580" {
		t.Error("points share a tag map")
	}
}

func TestToPoints_DeviceID(t *testing.T) {
	for _, p := range ToPoints(sampleReading(), "kitchen-plug", time.Now()) {
		if p.Tags[DeviceTag] != "kitchen-plug" {
			t.Fatalf("device tag = %q, want kitchen-plug", p.Tags[DeviceTag])
		}
	}
}

func TestFieldNamesMatchReading(t *testing.T) {
	if len(FieldNames) != reflect.TypeOf(interfaces.Reading{}).NumField() {
		t.Errorf("FieldNames has %d entries, Reading has %d fields",
			len(FieldNames), reflect.TypeOf(interfaces.Reading{}).NumField())
	}
}
