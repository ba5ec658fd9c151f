// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"warning", "warning", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"fatal", "fatal", zerolog.FatalLevel},
		{"invalid defaults to info", "invalid", zerolog.InfoLevel},
		{"empty defaults to info", "", zerolog.InfoLevel},
		{"uppercase", "DEBUG", zerolog.DebugLevel},
		{"padded", "  warn ", zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error", "fatal"} {
		if !ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = false, want true", level)
		}
	}
	for _, level := range []string{"", "trace", "verbose", "panic"} {
		if ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = true, want false", level)
		}
	}
}

func TestLogFunctions(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("debug", &buf)

	tests := []struct {
		name    string
		logFunc func() *zerolog.Event
		message string
		level   string
	}{
		{"debug", Debug, "debug message", "DBG"},
		{"info", Info, "info message", "INF"},
		{"warn", Warn, "warn message", "WRN"},
		{"error", Error, "error message", "ERR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()

			tt.logFunc().Msg(tt.message)

			output := buf.String()
			if !strings.Contains(output, tt.message) {
				t.Errorf("%s() output should contain message %q, got %q", tt.name, tt.message, output)
			}
			if !strings.Contains(output, tt.level) {
				t.Errorf("%s() output should contain level %q, got %q", tt.name, tt.level, output)
			}
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name        string
		configLevel string
		logLevel    string
		shouldLog   bool
	}{
		{"info logs at info level", "info", "info", true},
		{"debug filtered at info level", "info", "debug", false},
		{"warn logs at info level", "info", "warn", true},
		{"debug logs at debug level", "debug", "debug", true},
		{"info filtered at error level", "error", "info", false},
		{"warn filtered at error level", "error", "warn", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitializeWithWriter(tt.configLevel, &buf)

			message := "test message for filtering"
			switch tt.logLevel {
			case "debug":
				Debug().Msg(message)
			case "info":
				Info().Msg(message)
			case "warn":
				Warn().Msg(message)
			case "error":
				Error().Msg(message)
			}

			hasMessage := strings.Contains(buf.String(), message)
			if tt.shouldLog && !hasMessage {
				t.Errorf("Expected message to be logged at %s level with config %s, but it wasn't", tt.logLevel, tt.configLevel)
			}
			if !tt.shouldLog && hasMessage {
				t.Errorf("Expected message NOT to be logged at %s level with config %s, but it was", tt.logLevel, tt.configLevel)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("info", &buf)

	Info().
		Str("field", "voltage").
		Float64("value", 231.0).
		Dur("interval", 0).
		Msg("test with fields")

	output := buf.String()
	for _, want := range []string{"test with fields", "field=voltage", "value=231", "service=energy-collector"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q, got: %s", want, output)
		}
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	Initialize("info")
	SetOutput(&buf)

	Info().Msg("redirected")

	if !strings.Contains(buf.String(), "redirected") {
		t.Errorf("SetOutput() should redirect output, got: %s", buf.String())
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("info", &buf)

	child := With().Str("component", "writer").Logger()
	child.Info().Msg("child message")

	output := buf.String()
	if !strings.Contains(output, "child message") || !strings.Contains(output, "component=writer") {
		t.Errorf("child logger output = %q", output)
	}
}
