// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package motion turns high level motion commands into precisely timed
// single-step pulses on a stepper motor.
//
// A Controller owns the motor position, direction and the currently planned
// move. It asks a ramp.Generator for the interval before each upcoming step
// and schedules that interval on a TimingSource; on every tick it emits one
// micro-step on the hardware stepper, updates the position and re-arms the
// timer until the plan is exhausted.
//
// All Controller methods are non-blocking: they plan, arm the timer and
// return. Completion is reported through the event callback.
package motion
