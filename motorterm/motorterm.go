// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package motorterm implements a stepper motor that outputs to terminal
// (stdout) using ANSI color codes.
//
// Useful while you are waiting for your stepper driver breakout to come by
// mail: wire it to a motion.Controller and watch the axis sweep across the
// terminal as the ramp accelerates and decelerates.
package motorterm

import (
	"bytes"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"

	"github.com/GermanBionicSystems/stepmotion/stepper"
)

// Opts represents the options available for this motor.
type Opts struct {
	// X is the number of terminal cells the axis spans.
	X int
	// Palette selects the ANSI palette; nil uses ansi256.Default.
	Palette *ansi256.Palette
	// Writer overrides the default colorable stdout. Mainly for tests.
	Writer io.Writer

	_ struct{}
}

// Dev is a stepper motor emulator that renders its position to the console.
type Dev struct {
	w       io.Writer
	l       int
	palette ansi256.Palette

	mu       sync.Mutex
	position int
	enabled  bool
	res      stepper.MicroStepResolution
	buf      bytes.Buffer
}

// New returns a Dev that displays the axis position at the console.
//
// Permits local testing of motion profiles without hardware.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.Writer
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{
		w:       w,
		l:       opts.X,
		palette: *p,
		res:     stepper.MicroStep1,
	}
}

func (d *Dev) String() string {
	return "MotorTerm"
}

// Halt implements conn.Resource.
//
// It disables the motor and releases the output line so the terminal is not
// corrupted.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Enable implements stepper.Stepper.
func (d *Dev) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = true
	return nil
}

// Disable implements stepper.Stepper.
func (d *Dev) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	return nil
}

// Step implements stepper.Stepper. The axis marker moves one cell per full
// sweep of micro-steps at the active resolution and wraps around the span.
func (d *Dev) Step(dir stepper.Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return stepper.ErrCanceled
	}
	d.position += int(dir)
	return d.refresh()
}

// SetMicroStepResolution implements stepper.Stepper.
func (d *Dev) SetMicroStepResolution(r stepper.MicroStepResolution) error {
	if !r.IsValid() {
		return stepper.ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.res = r
	return nil
}

// MicroStepResolution implements stepper.Stepper.
func (d *Dev) MicroStepResolution() (stepper.MicroStepResolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res, nil
}

// SetEventCallback implements stepper.Stepper. The emulator never produces
// hardware events; the callback is accepted and unused.
func (d *Dev) SetEventCallback(f stepper.EventFunc) {
}

// Position returns the net micro-steps emitted since creation.
func (d *Dev) Position() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

func (d *Dev) refresh() error {
	// One full-step worth of micro-steps per cell keeps the sweep readable
	// at high resolutions.
	cell := d.position / int(d.res)
	cell = ((cell % d.l) + d.l) % d.l
	// This code is designed to minimize the amount of memory allocated per
	// call.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < d.l; i++ {
		c := color.NRGBA{0x30, 0x30, 0x30, 255}
		if i == cell {
			c = color.NRGBA{0x00, 0xFF, 0x40, 255}
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ stepper.Stepper = &Dev{}
