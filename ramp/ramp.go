// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ramp generates the step interval sequences that realize a stepper
// motor velocity profile.
//
// A Generator is a pure state machine over step counts and intervals: it
// plans a move of N steps, yields the interval to wait before each upcoming
// step, and knows how to bring the motor to rest from its current velocity.
// Two profiles are provided: Constant (fixed interval) and Trapezoidal
// (accelerate, cruise, decelerate using the AVR446 integer recurrence).
//
// All arithmetic is 64-bit unsigned integer. There is deliberately no
// floating point so that the generated schedules are identical on every
// platform, FPU or not.
package ramp

import (
	"math"
	"time"
)

// ContinuousSteps requests a move that runs until explicitly stopped.
//
// Generators do not count down a phase holding this sentinel.
const ContinuousSteps uint32 = math.MaxInt32

// Generator plans and yields the inter-step intervals of a move.
//
// Generators are plain state machines with no locking; the motion controller
// serializes calls under its own lock.
type Generator interface {
	// PrepareMove initializes the generator for a new move of steps steps,
	// starting from the current velocity. It returns the total number of
	// steps the generator will emit.
	PrepareMove(steps uint32) (uint64, error)
	// PrepareStop reconfigures the generator to bring motion to rest from
	// the current velocity. It returns the number of steps that will still
	// be emitted; 0 means the stop is immediate.
	PrepareStop() (uint64, error)
	// NextInterval advances the generator by one step and returns the
	// interval to wait before that step is emitted. 0 means the move is
	// finished.
	NextInterval() time.Duration
	// Reset discards all state; the generator behaves as if the motor were
	// at rest.
	Reset()
}

const nsPerSec = 1000000000

// sqrtFactor is chosen so that 2*sqrtFactor*sqrtFactor barely fits in 64
// bits, maximizing isqrt precision without overflow.
const sqrtFactor = 3037000499

// isqrt returns the integer square root of n, the largest value whose square
// does not exceed n, using the Babylonian iteration.
func isqrt(n uint64) uint64 {
	if n <= 1 {
		return n
	}
	x := n
	// ceil(n/2) without the overflow of (n+1)/2 at math.MaxUint64.
	y := x/2 + x%2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// startInterval returns the interval of the very first step when
// accelerating from rest, in nanoseconds.
//
// AVR446 section 2.3.1: c0 = f * sqrt(2/a), corrected by 0.676 to compensate
// the error of the inter-step approximation. The division 2/a is lifted into
// the square root as 2*k*k/a so everything stays integer.
func startInterval(rate uint32) uint64 {
	if rate == 0 {
		return 0
	}
	return nsPerSec * 676 / 1000 * isqrt(2*sqrtFactor*sqrtFactor/uint64(rate)) / sqrtFactor
}

// rampSteps returns how many steps it takes to ramp between rest and the
// velocity of one step per interval nanoseconds at the given rate in
// steps/s².
//
// Closed form of constant acceleration: steps = v² / (2*rate) with
// v = 1e9/interval steps per second.
func rampSteps(interval uint64, rate uint32) uint32 {
	if interval == 0 {
		return 0
	}
	v := nsPerSec / interval
	return uint32(v * v / (2 * uint64(rate)))
}
