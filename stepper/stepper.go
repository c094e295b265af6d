// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"errors"

	"periph.io/x/conn/v3"
)

var (
	// ErrNotImplemented is returned when an optional operation is not
	// supported by a backend.
	ErrNotImplemented = errors.New("operation not implemented")

	// ErrInvalidArgument is returned on out of range values, such as a zero
	// acceleration rate or an unsupported micro-step resolution.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCanceled is returned when a motion command is issued while the
	// stepper is disabled.
	ErrCanceled = errors.New("stepper is disabled")

	// ErrIO is returned on a hardware transport failure.
	ErrIO = errors.New("input/output error")

	// ErrNotReady is returned when the underlying device is not initialized.
	ErrNotReady = errors.New("device not ready")
)

// Direction is the sense of rotation of a single micro-step.
//
// The value doubles as the position delta per emitted step.
type Direction int8

const (
	// Negative steps toward smaller positions.
	Negative Direction = -1
	// Positive steps toward larger positions.
	Positive Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Negative:
		return "negative"
	case Positive:
		return "positive"
	default:
		return "unknown"
	}
}

// MicroStepResolution is the number of micro-steps per full step.
type MicroStepResolution uint16

const (
	// MicroStep1 is full step resolution.
	MicroStep1 MicroStepResolution = 1
	// MicroStep2 is 2 micro-steps per full step.
	MicroStep2 MicroStepResolution = 2
	// MicroStep4 is 4 micro-steps per full step.
	MicroStep4 MicroStepResolution = 4
	// MicroStep8 is 8 micro-steps per full step.
	MicroStep8 MicroStepResolution = 8
	// MicroStep16 is 16 micro-steps per full step.
	MicroStep16 MicroStepResolution = 16
	// MicroStep32 is 32 micro-steps per full step.
	MicroStep32 MicroStepResolution = 32
	// MicroStep64 is 64 micro-steps per full step.
	MicroStep64 MicroStepResolution = 64
	// MicroStep128 is 128 micro-steps per full step.
	MicroStep128 MicroStepResolution = 128
	// MicroStep256 is 256 micro-steps per full step.
	MicroStep256 MicroStepResolution = 256
)

// IsValid reports whether r is a supported power-of-two resolution.
func (r MicroStepResolution) IsValid() bool {
	return r >= MicroStep1 && r <= MicroStep256 && r&(r-1) == 0
}

// Event is a hardware event reported by a stepper driver.
type Event uint8

const (
	// StallDetected is emitted when the driver detects a motor stall.
	StallDetected Event = iota
	// LeftEndStopDetected is emitted when the left end switch closes.
	LeftEndStopDetected
	// RightEndStopDetected is emitted when the right end switch closes.
	RightEndStopDetected
	// FaultDetected is emitted on a driver fault condition.
	FaultDetected
)

func (e Event) String() string {
	switch e {
	case StallDetected:
		return "stall detected"
	case LeftEndStopDetected:
		return "left end stop detected"
	case RightEndStopDetected:
		return "right end stop detected"
	case FaultDetected:
		return "fault detected"
	default:
		return "unknown event"
	}
}

// EventFunc receives hardware events.
//
// It may be called from an interrupt-like context; implementations must not
// block.
type EventFunc func(Event)

// Stepper is the contract a stepper motor driver implements.
//
// Step emits exactly one micro-step and must be cheap enough to call from a
// timer callback. Drivers report asynchronous hardware conditions through
// the callback registered with SetEventCallback.
type Stepper interface {
	conn.Resource

	// Enable energizes the motor coils without moving the motor.
	Enable() error
	// Disable cancels any motion and de-energizes the coils.
	Disable() error
	// Step emits exactly one micro-step in the given direction.
	Step(d Direction) error
	// SetMicroStepResolution selects the micro-step resolution.
	SetMicroStepResolution(r MicroStepResolution) error
	// MicroStepResolution returns the active micro-step resolution.
	MicroStepResolution() (MicroStepResolution, error)
	// SetEventCallback subscribes to hardware events. Passing nil clears
	// the subscription.
	SetEventCallback(f EventFunc)
}
