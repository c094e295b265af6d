// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package steppertest is meant to be used to test drivers and controllers
// against a fake stepper motor.
package steppertest

import (
	"sync"

	"github.com/GermanBionicSystems/stepmotion/stepper"
)

// Stepper implements stepper.Stepper and records every emitted step.
//
// Fields can be inspected after the fact; they are protected by the embedded
// lock.
type Stepper struct {
	sync.Mutex
	// Steps is the recorded sequence of step directions.
	Steps []stepper.Direction
	// StepErr, when set, is returned by every Step call. Steps are still
	// recorded.
	StepErr error
	// Enabled reflects Enable/Disable calls.
	Enabled bool
	// Res is the active micro-step resolution. Zero reads as full step.
	Res stepper.MicroStepResolution

	callback stepper.EventFunc
}

func (s *Stepper) String() string {
	return "steppertest"
}

// Halt implements conn.Resource. It disables the fake stepper.
func (s *Stepper) Halt() error {
	return s.Disable()
}

// Enable implements stepper.Stepper.
func (s *Stepper) Enable() error {
	s.Lock()
	defer s.Unlock()
	s.Enabled = true
	return nil
}

// Disable implements stepper.Stepper.
func (s *Stepper) Disable() error {
	s.Lock()
	defer s.Unlock()
	s.Enabled = false
	return nil
}

// Step implements stepper.Stepper. The step is recorded even when StepErr is
// set, mirroring hardware that may or may not have moved.
func (s *Stepper) Step(d stepper.Direction) error {
	s.Lock()
	defer s.Unlock()
	s.Steps = append(s.Steps, d)
	return s.StepErr
}

// SetMicroStepResolution implements stepper.Stepper.
func (s *Stepper) SetMicroStepResolution(r stepper.MicroStepResolution) error {
	if !r.IsValid() {
		return stepper.ErrInvalidArgument
	}
	s.Lock()
	defer s.Unlock()
	s.Res = r
	return nil
}

// MicroStepResolution implements stepper.Stepper.
func (s *Stepper) MicroStepResolution() (stepper.MicroStepResolution, error) {
	s.Lock()
	defer s.Unlock()
	if s.Res == 0 {
		return stepper.MicroStep1, nil
	}
	return s.Res, nil
}

// SetEventCallback implements stepper.Stepper.
func (s *Stepper) SetEventCallback(f stepper.EventFunc) {
	s.Lock()
	defer s.Unlock()
	s.callback = f
}

// EmitEvent injects a hardware event, as if the driver had detected it.
func (s *Stepper) EmitEvent(e stepper.Event) {
	s.Lock()
	f := s.callback
	s.Unlock()
	if f != nil {
		f(e)
	}
}

// Net returns the signed sum of recorded steps.
func (s *Stepper) Net() int {
	s.Lock()
	defer s.Unlock()
	n := 0
	for _, d := range s.Steps {
		n += int(d)
	}
	return n
}

var _ stepper.Stepper = &Stepper{}
