// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package collector runs the poll loop: fetch a reading from the device,
// turn it into data points, write them, then wait before the next round.
//
// # Retry Policy
//
// A fully successful iteration schedules the next one after the baseline
// interval. Any failure, whatever its kind, schedules the next one after
// the shorter retry interval. Failures never stop the loop; only
// cancellation of the context passed to Run does.
//
// # Phases
//
// The loop moves through idle, fetching, transforming, writing and
// cooling_down. A failure jumps straight to cooling_down. terminating is
// entered from idle or cooling_down once cancellation is observed. The
// current phase is exported as the energy_collector_loop_phase gauge.
//
// # Cancellation
//
// The unit of work runs under a context detached from cancellation, so a
// signal received mid-fetch or mid-write lets that unit finish. The wait
// between iterations wakes immediately on cancellation.
package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	apperrors "github.com/soothill/delock-energy-collector/pkg/errors"
	"github.com/soothill/delock-energy-collector/pkg/interfaces"
	"github.com/soothill/delock-energy-collector/pkg/logger"
	"github.com/soothill/delock-energy-collector/pkg/metrics"
)

// Loop phases
const (
	PhaseIdle         = "idle"
	PhaseFetching     = "fetching"
	PhaseTransforming = "transforming"
	PhaseWriting      = "writing"
	PhaseCoolingDown  = "cooling_down"
	PhaseTerminating  = "terminating"
)

const (
	eventFetch     = "fetch"
	eventTransform = "transform"
	eventWrite     = "write"
	eventComplete  = "complete"
	eventFail      = "fail"
	eventWake      = "wake"
	eventTerminate = "terminate"
)

var phases = []string{
	PhaseIdle,
	PhaseFetching,
	PhaseTransforming,
	PhaseWriting,
	PhaseCoolingDown,
	PhaseTerminating,
}

// Settings configures a Controller.
type Settings struct {
	DeviceID         string
	BaselineInterval time.Duration
	RetryInterval    time.Duration
}

// Controller orchestrates the fetch, transform and write steps.
type Controller struct {
	fetcher  interfaces.Fetcher
	writer   interfaces.PointWriter
	deviceID string
	baseline time.Duration
	retry    time.Duration

	machine *fsm.FSM
	now     func() time.Time

	// snapshot is read by debug signal handlers outside the loop goroutine
	snapshot atomic.Pointer[LoopState]
}

// NewController creates a controller in the idle phase.
func NewController(fetcher interfaces.Fetcher, writer interfaces.PointWriter, settings Settings) *Controller {
	c := &Controller{
		fetcher:  fetcher,
		writer:   writer,
		deviceID: settings.DeviceID,
		baseline: settings.BaselineInterval,
		retry:    settings.RetryInterval,
		now:      time.Now,
	}

	c.machine = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventFetch, Src: []string{PhaseIdle}, Dst: PhaseFetching},
			{Name: eventTransform, Src: []string{PhaseFetching}, Dst: PhaseTransforming},
			{Name: eventWrite, Src: []string{PhaseTransforming}, Dst: PhaseWriting},
			{Name: eventComplete, Src: []string{PhaseWriting}, Dst: PhaseCoolingDown},
			{Name: eventFail, Src: []string{PhaseFetching, PhaseTransforming, PhaseWriting}, Dst: PhaseCoolingDown},
			{Name: eventWake, Src: []string{PhaseCoolingDown}, Dst: PhaseIdle},
			{Name: eventTerminate, Src: []string{PhaseIdle, PhaseCoolingDown}, Dst: PhaseTerminating},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				setPhaseGauge(e.Dst)
				logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("Loop phase changed")
			},
		},
	)
	setPhaseGauge(PhaseIdle)

	initial := NewLoopState(c.baseline)
	c.snapshot.Store(&initial)

	return c
}

// Phase returns the current loop phase.
func (c *Controller) Phase() string {
	return c.machine.Current()
}

// Snapshot returns the state recorded after the most recent iteration.
func (c *Controller) Snapshot() LoopState {
	return *c.snapshot.Load()
}

// Run iterates until ctx is cancelled and returns the final state.
// The first iteration starts immediately.
func (c *Controller) Run(ctx context.Context) LoopState {
	state := NewLoopState(c.baseline)

	logger.Info().
		Str("device", c.deviceID).
		Dur("baseline_interval", c.baseline).
		Dur("retry_interval", c.retry).
		Msg("Starting collector loop")

	for ctx.Err() == nil {
		state = c.Iterate(ctx, state)
		if !c.wait(ctx, state.Interval) {
			break
		}
	}

	state.Cancelled = true
	c.fire(context.WithoutCancel(ctx), eventTerminate)
	c.snapshot.Store(&state)

	logger.Info().Object("state", state).Msg("Cancellation received, collector loop terminated")
	return state
}

// Iterate runs one fetch, transform and write unit and returns the next state.
// It never returns an error: failures are classified into the next interval.
func (c *Controller) Iterate(ctx context.Context, state LoopState) LoopState {
	unitCtx := context.WithoutCancel(ctx)

	if c.machine.Is(PhaseCoolingDown) {
		c.fire(unitCtx, eventWake)
	}

	state.Iterations++
	metrics.IterationsTotal.Inc()
	logger.Debug().
		Uint64("iteration", state.Iterations).
		Str("device", c.deviceID).
		Msg("Starting poll iteration")

	if err := c.runUnit(unitCtx); err != nil {
		phase := c.machine.Current()
		c.fire(unitCtx, eventFail)
		state = c.recordFailure(state, phase, err)
	} else {
		c.fire(unitCtx, eventComplete)
		state = c.recordSuccess(state)
	}

	metrics.NextInterval.Set(state.Interval.Seconds())
	metrics.ConsecutiveFailures.Set(float64(state.ConsecutiveFailures))

	snap := state
	c.snapshot.Store(&snap)
	return state
}

// runUnit performs fetch, transform and write as one unit.
func (c *Controller) runUnit(ctx context.Context) error {
	c.fire(ctx, eventFetch)

	start := time.Now()
	reading, err := c.fetcher.Fetch(ctx)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if reading == nil {
		return apperrors.NewParseError("", apperrors.ErrMissingField)
	}
	fetchedAt := c.now()

	c.fire(ctx, eventTransform)
	points := ToPoints(*reading, c.deviceID, fetchedAt)

	c.fire(ctx, eventWrite)
	if err := c.writer.Write(ctx, points); err != nil {
		return err
	}

	for _, p := range points {
		metrics.CurrentValue.WithLabelValues(c.deviceID, p.Field).Set(p.Value)
	}
	return nil
}

func (c *Controller) recordSuccess(state LoopState) LoopState {
	state.Interval = c.baseline
	state.ConsecutiveFailures = 0
	state.LastError = nil
	state.LastSuccess = c.now()

	metrics.LastSuccess.Set(float64(state.LastSuccess.Unix()))

	logger.Debug().
		Uint64("iteration", state.Iterations).
		Dur("next_in", state.Interval).
		Msg("Poll iteration succeeded")
	return state
}

func (c *Controller) recordFailure(state LoopState, phase string, err error) LoopState {
	kind := apperrors.KindOf(err)

	state.Interval = c.retry
	state.ConsecutiveFailures++
	state.LastError = err

	metrics.IterationFailures.WithLabelValues(kind.String()).Inc()

	switch kind {
	case apperrors.KindTimeout:
		logger.Warn().
			Err(err).
			Str("phase", phase).
			Uint64("consecutive_failures", state.ConsecutiveFailures).
			Dur("retry_in", state.Interval).
			Msg("Device did not answer in time, retrying sooner")
	default:
		logger.Error().
			Err(err).
			Str("kind", kind.String()).
			Str("phase", phase).
			Strs("error_chain", errorChain(err)).
			Uint64("iteration", state.Iterations).
			Uint64("consecutive_failures", state.ConsecutiveFailures).
			Dur("retry_in", state.Interval).
			Msg("Poll iteration failed")
	}
	return state
}

// wait blocks for d or until ctx is cancelled. It reports whether d elapsed.
func (c *Controller) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// fire triggers a phase transition. Transitions are internal bookkeeping,
// so a rejected one is logged rather than returned.
func (c *Controller) fire(ctx context.Context, event string) {
	if err := c.machine.Event(ctx, event); err != nil {
		logger.Debug().Err(err).Str("event", event).Str("phase", c.machine.Current()).
			Msg("Loop phase transition rejected")
	}
}

func setPhaseGauge(current string) {
	for _, p := range phases {
		v := 0.0
		if p == current {
			v = 1
		}
		metrics.LoopPhase.WithLabelValues(p).Set(v)
	}
}

// errorChain lists the dynamic type of every error in err's Unwrap chain.
func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, fmt.Sprintf("%T", err))
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return chain
}
