// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"time"

	"github.com/rs/zerolog"
)

// LoopState is the cross-iteration memory of the poll loop. The Controller
// owns it and passes it by value between iterations.
type LoopState struct {
	// Interval is the wait before the next iteration.
	Interval time.Duration
	// Cancelled is set once the loop observed cancellation.
	Cancelled bool

	Iterations          uint64
	ConsecutiveFailures uint64
	LastSuccess         time.Time
	LastError           error
}

// NewLoopState returns the state the loop starts with.
func NewLoopState(baseline time.Duration) LoopState {
	return LoopState{Interval: baseline}
}

// MarshalZerologObject lets the state be logged with Object().
func (s LoopState) MarshalZerologObject(e *zerolog.Event) {
	e.Dur("interval", s.Interval).
		Bool("cancelled", s.Cancelled).
		Uint64("iterations", s.Iterations).
		Uint64("consecutive_failures", s.ConsecutiveFailures)
	if !s.LastSuccess.IsZero() {
		e.Time("last_success", s.LastSuccess)
	}
	if s.LastError != nil {
		e.Str("last_error", s.LastError.Error())
	}
}
