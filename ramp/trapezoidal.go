// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ramp

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/stepmotion/stepper"
)

// Trapezoidal accelerates to a target cruise velocity, holds it, then
// decelerates to rest within the planned step budget.
//
// Intervals follow the AVR446 recurrence: after the first step at
// c0 = startInterval(rate), each acceleration step shortens the interval by
// (2*c + r) / (4*n + 1) where r carries the remainder of the previous
// division. Deceleration runs the same recurrence backwards. When a move
// starts faster than its cruise velocity, a pre-deceleration phase raises
// the interval smoothly to the cruise value before cruising.
type Trapezoidal struct {
	// Profile.
	runInterval uint64
	accelRate   uint32
	decelRate   uint32

	// Phase counters. Their sum is the number of steps still to emit.
	preDecelLeft uint32
	accelLeft    uint32
	runLeft      uint32
	decelLeft    uint32

	// Recurrence scratch.
	current       uint64
	rest          uint64
	accelIdx      uint32
	firstInterval uint64
	lastInterval  uint64

	// Cruise interval of the active move. Differs from runInterval after
	// PrepareStop, which has no cruise.
	moveInterval uint64
}

// NewTrapezoidal returns a trapezoidal generator cruising at one step per
// interval, ramping at acceleration and deceleration steps/s².
func NewTrapezoidal(interval time.Duration, acceleration, deceleration uint32) (*Trapezoidal, error) {
	t := &Trapezoidal{}
	if err := t.SetProfile(interval, acceleration, deceleration); err != nil {
		return nil, err
	}
	return t, nil
}

// SetProfile changes the velocity profile used by subsequent moves.
//
// A running move keeps its current plan; the next PrepareMove picks up the
// new profile, pre-decelerating if the motor is above the new cruise
// velocity.
func (t *Trapezoidal) SetProfile(interval time.Duration, acceleration, deceleration uint32) error {
	if interval <= 0 {
		return fmt.Errorf("%w: cruise interval must be positive", stepper.ErrInvalidArgument)
	}
	if acceleration == 0 {
		return fmt.Errorf("%w: acceleration rate cannot be zero", stepper.ErrInvalidArgument)
	}
	if deceleration == 0 {
		return fmt.Errorf("%w: deceleration rate cannot be zero", stepper.ErrInvalidArgument)
	}
	t.runInterval = uint64(interval)
	t.accelRate = acceleration
	t.decelRate = deceleration
	return nil
}

// PrepareMove implements Generator.
//
// The step budget is split into pre-deceleration, acceleration, cruise and
// deceleration phases based on the current velocity:
//
//   - already faster than cruise: pre-decelerate down to it, cruise, then
//     decelerate to rest;
//   - at rest or slower than cruise: accelerate up to it; if the budget is
//     too small to reach cruise, split it between acceleration and
//     deceleration proportionally to the two rates.
func (t *Trapezoidal) PrepareMove(steps uint32) (uint64, error) {
	if t.accelRate == 0 || t.decelRate == 0 {
		return 0, fmt.Errorf("%w: ramp rate cannot be zero", stepper.ErrInvalidArgument)
	}
	t.firstInterval = startInterval(t.accelRate)
	t.lastInterval = startInterval(t.decelRate)

	// Steps to stop from the current velocity.
	stopLim := rampSteps(t.current, t.decelRate)
	// Steps from rest up to the cruise velocity.
	accelLim := rampSteps(t.runInterval, t.accelRate)
	// Steps from the cruise velocity down to rest.
	decelLim := rampSteps(t.runInterval, t.decelRate)

	if t.current != 0 && t.current < t.runInterval {
		// Moving faster than the requested cruise velocity: slow down first.
		t.preDecelLeft = 0
		if stopLim > decelLim {
			t.preDecelLeft = stopLim - decelLim
		}
		t.accelLeft = 0
		t.accelIdx = accelLim
		t.decelLeft = decelLim
		if planned := t.preDecelLeft + t.decelLeft; steps > planned {
			t.runLeft = steps - planned
		} else {
			t.runLeft = 0
		}
	} else {
		// At rest or slower than the requested cruise velocity: speed up.
		// stopLim is 0 at rest.
		t.preDecelLeft = 0
		t.accelLeft = 0
		if accelLim > stopLim {
			t.accelLeft = accelLim - stopLim
		}
		if t.accelLeft+decelLim >= steps {
			// Not enough room to reach cruise: split the budget by the two
			// rates.
			t.decelLeft = uint32(uint64(steps) * uint64(t.accelRate) / (uint64(t.accelRate) + uint64(t.decelRate)))
			t.accelLeft = steps - t.decelLeft
			t.runLeft = 0
		} else {
			t.decelLeft = decelLim
			t.runLeft = steps - t.accelLeft - t.decelLeft
		}
		t.accelIdx = 0
	}

	if steps == ContinuousSteps {
		// Continuous move: pin the cruise phase so it never counts down.
		t.runLeft = ContinuousSteps
	}

	t.moveInterval = t.runInterval
	return uint64(t.preDecelLeft) + uint64(t.accelLeft) + uint64(t.runLeft) + uint64(t.decelLeft), nil
}

// PrepareStop implements Generator.
func (t *Trapezoidal) PrepareStop() (uint64, error) {
	if t.decelRate == 0 {
		return 0, fmt.Errorf("%w: deceleration rate cannot be zero", stepper.ErrInvalidArgument)
	}
	steps := rampSteps(t.current, t.decelRate)
	t.lastInterval = startInterval(t.decelRate)
	t.preDecelLeft = 0
	t.accelLeft = 0
	t.runLeft = 0
	t.moveInterval = 0
	t.decelLeft = steps
	return uint64(steps), nil
}

// NextInterval implements Generator. Phases advance in order
// pre-deceleration, acceleration, cruise, deceleration; each call consumes
// exactly one phase step.
func (t *Trapezoidal) NextInterval() time.Duration {
	switch {
	case t.preDecelLeft > 0:
		t.preDecelLeft--
		num := 2*t.current + t.rest
		den := 4 * uint64(t.preDecelLeft+t.decelLeft)
		t.rest = num % den
		t.current += num / den
	case t.accelLeft > 0:
		if t.accelIdx == 0 {
			t.rest = 0
			t.current = t.firstInterval
			t.accelIdx = 1
		} else {
			num := 2*t.current + t.rest
			den := 4*uint64(t.accelIdx) + 1
			t.rest = num % den
			t.current -= num / den
			t.accelIdx++
		}
		t.accelLeft--
	case t.runLeft > 0:
		if t.runLeft != ContinuousSteps {
			t.runLeft--
		}
		t.current = t.moveInterval
	case t.decelLeft > 0:
		t.decelLeft--
		if t.decelLeft == 0 {
			// The closing step is forced to the rest interval of the
			// deceleration rate so the curve ends where an acceleration
			// would begin.
			t.rest = 0
			t.current = t.lastInterval
		} else {
			num := 2*t.current + t.rest
			den := 4 * uint64(t.decelLeft)
			t.rest = num % den
			t.current += num / den
		}
	default:
		t.current = 0
	}
	return time.Duration(t.current)
}

// Reset implements Generator.
func (t *Trapezoidal) Reset() {
	t.preDecelLeft = 0
	t.accelLeft = 0
	t.runLeft = 0
	t.decelLeft = 0
	t.current = 0
	t.rest = 0
	t.accelIdx = 0
	t.moveInterval = 0
}

var _ Generator = &Trapezoidal{}
