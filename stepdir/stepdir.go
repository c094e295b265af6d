// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepdir

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/stepmotion/stepper"
)

// Opts represents the wiring of a step/dir driver.
type Opts struct {
	// Step is the step pulse output. Required.
	Step gpio.PinOut
	// Dir is the direction output. Required.
	Dir gpio.PinOut
	// Enable is the coil enable output. Optional; without it Enable and
	// Disable only track state.
	Enable gpio.PinOut
	// Fault is the driver fault input. Optional; a rising edge reports
	// stepper.FaultDetected.
	Fault gpio.PinIn
	// MicroStep are the resolution select pins, least significant first.
	// Optional.
	MicroStep []gpio.PinOut
	// Resolutions maps each MicroStep pin state to the resolution it
	// selects; entry i corresponds to pin state i. Must hold
	// 1<<len(MicroStep) entries when MicroStep is wired.
	Resolutions []stepper.MicroStepResolution
	// InvertDirection swaps the direction pin polarity.
	InvertDirection bool
	// InvertEnable makes the enable output active low, as on drivers with
	// an nEN input.
	InvertEnable bool
	// DualEdgeStep emits a step on both edges of the step pin, halving the
	// number of writes for drivers that support it.
	DualEdgeStep bool

	_ struct{}
}

// Dev is a step/dir stepper motor driver.
type Dev struct {
	opts Opts

	mu        sync.Mutex
	enabled   bool
	stepLevel gpio.Level
	res       stepper.MicroStepResolution
	callback  stepper.EventFunc

	stopWatch sync.Once
	done      chan struct{}
}

// New returns a Dev driving the given pins.
//
// The motor starts disabled; call Enable before stepping.
func New(o *Opts) (*Dev, error) {
	if o.Step == nil || o.Dir == nil {
		return nil, fmt.Errorf("%w: step and dir pins are required", stepper.ErrInvalidArgument)
	}
	if len(o.MicroStep) > 0 && len(o.Resolutions) != 1<<uint(len(o.MicroStep)) {
		return nil, fmt.Errorf("%w: need %d resolution entries for %d micro-step pins",
			stepper.ErrInvalidArgument, 1<<uint(len(o.MicroStep)), len(o.MicroStep))
	}
	d := &Dev{opts: *o, res: stepper.MicroStep1, done: make(chan struct{})}
	if err := o.Step.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: configuring step pin: %v", stepper.ErrIO, err)
	}
	if err := o.Dir.Out(gpio.Level(o.InvertDirection)); err != nil {
		return nil, fmt.Errorf("%w: configuring dir pin: %v", stepper.ErrIO, err)
	}
	if o.Enable != nil {
		if err := o.Enable.Out(gpio.Level(o.InvertEnable)); err != nil {
			return nil, fmt.Errorf("%w: configuring enable pin: %v", stepper.ErrIO, err)
		}
	}
	if len(o.MicroStep) > 0 {
		if err := d.applyResolution(o.Resolutions[0]); err != nil {
			return nil, err
		}
	}
	if o.Fault != nil {
		if err := o.Fault.In(gpio.PullNoChange, gpio.RisingEdge); err != nil {
			return nil, fmt.Errorf("%w: configuring fault pin: %v", stepper.ErrIO, err)
		}
		go d.watchFault()
	}
	return d, nil
}

func (d *Dev) String() string {
	return "stepdir{" + d.opts.Step.Name() + ", " + d.opts.Dir.Name() + "}"
}

// Halt implements conn.Resource. It disables the driver and stops the fault
// watcher.
func (d *Dev) Halt() error {
	d.stopWatch.Do(func() { close(d.done) })
	return d.Disable()
}

// Enable implements stepper.Stepper. It energizes the coils without moving
// the motor.
func (d *Dev) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.Enable != nil {
		if err := d.opts.Enable.Out(gpio.Level(!d.opts.InvertEnable)); err != nil {
			return fmt.Errorf("%w: setting enable pin: %v", stepper.ErrIO, err)
		}
	}
	d.enabled = true
	return nil
}

// Disable implements stepper.Stepper. Any in-flight motion command fails
// with stepper.ErrCanceled afterwards.
func (d *Dev) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.Enable != nil {
		if err := d.opts.Enable.Out(gpio.Level(d.opts.InvertEnable)); err != nil {
			return fmt.Errorf("%w: clearing enable pin: %v", stepper.ErrIO, err)
		}
	}
	d.enabled = false
	return nil
}

// Step implements stepper.Stepper. It emits exactly one micro-step.
func (d *Dev) Step(dir stepper.Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return stepper.ErrCanceled
	}
	high := dir == stepper.Positive
	if d.opts.InvertDirection {
		high = !high
	}
	if err := d.opts.Dir.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("%w: setting direction: %v", stepper.ErrIO, err)
	}
	if d.opts.DualEdgeStep {
		// One toggle is one step when the driver steps on both edges.
		d.stepLevel = !d.stepLevel
		if err := d.opts.Step.Out(d.stepLevel); err != nil {
			return fmt.Errorf("%w: toggling step pin: %v", stepper.ErrIO, err)
		}
		return nil
	}
	if err := d.opts.Step.Out(gpio.High); err != nil {
		return fmt.Errorf("%w: raising step pin: %v", stepper.ErrIO, err)
	}
	if err := d.opts.Step.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: lowering step pin: %v", stepper.ErrIO, err)
	}
	return nil
}

// SetMicroStepResolution implements stepper.Stepper. It drives the MSx pins
// to the state mapped to the requested resolution.
func (d *Dev) SetMicroStepResolution(r stepper.MicroStepResolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opts.MicroStep) == 0 {
		return fmt.Errorf("%w: no micro-step pins wired", stepper.ErrNotImplemented)
	}
	if !r.IsValid() {
		return fmt.Errorf("%w: bad micro-step resolution %d", stepper.ErrInvalidArgument, r)
	}
	return d.applyResolution(r)
}

// MicroStepResolution implements stepper.Stepper.
func (d *Dev) MicroStepResolution() (stepper.MicroStepResolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res, nil
}

// SetEventCallback implements stepper.Stepper.
func (d *Dev) SetEventCallback(f stepper.EventFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = f
}

func (d *Dev) applyResolution(r stepper.MicroStepResolution) error {
	for state, res := range d.opts.Resolutions {
		if res != r {
			continue
		}
		for i, p := range d.opts.MicroStep {
			if err := p.Out(gpio.Level(state&(1<<uint(i)) != 0)); err != nil {
				return fmt.Errorf("%w: setting micro-step pin %d: %v", stepper.ErrIO, i, err)
			}
		}
		d.res = r
		return nil
	}
	return fmt.Errorf("%w: resolution %d not supported by this wiring", stepper.ErrInvalidArgument, r)
}

func (d *Dev) watchFault() {
	for {
		select {
		case <-d.done:
			return
		default:
		}
		if !d.opts.Fault.WaitForEdge(time.Second) {
			continue
		}
		if d.opts.Fault.Read() != gpio.High {
			continue
		}
		d.mu.Lock()
		f := d.callback
		d.mu.Unlock()
		if f != nil {
			f(stepper.FaultDetected)
		}
	}
}

var _ stepper.Stepper = &Dev{}
