// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ramp

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/stepmotion/stepper"
)

// Constant is a fixed velocity profile: every step uses the same interval
// and a stop takes effect immediately, with no deceleration phase.
type Constant struct {
	interval  uint64
	stepsLeft uint32
}

// NewConstant returns a constant velocity generator stepping once per
// interval.
func NewConstant(interval time.Duration) (*Constant, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: step interval must be positive", stepper.ErrInvalidArgument)
	}
	return &Constant{interval: uint64(interval)}, nil
}

// SetInterval changes the step interval used by subsequent moves.
func (c *Constant) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: step interval must be positive", stepper.ErrInvalidArgument)
	}
	c.interval = uint64(interval)
	return nil
}

// PrepareMove implements Generator.
func (c *Constant) PrepareMove(steps uint32) (uint64, error) {
	c.stepsLeft = steps
	return uint64(steps), nil
}

// PrepareStop implements Generator. The stop is always immediate.
func (c *Constant) PrepareStop() (uint64, error) {
	c.stepsLeft = 0
	return 0, nil
}

// NextInterval implements Generator.
func (c *Constant) NextInterval() time.Duration {
	if c.stepsLeft == 0 {
		return 0
	}
	// A continuous move never counts down, avoiding underflow after 2³¹-1
	// steps.
	if c.stepsLeft != ContinuousSteps {
		c.stepsLeft--
	}
	return time.Duration(c.interval)
}

// Reset implements Generator.
func (c *Constant) Reset() {
	c.stepsLeft = 0
}

var _ Generator = &Constant{}
