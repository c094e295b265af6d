// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepdir_test

import (
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/stepmotion/motion"
	"github.com/GermanBionicSystems/stepmotion/ramp"
	"github.com/GermanBionicSystems/stepmotion/stepdir"
	"github.com/GermanBionicSystems/stepmotion/stepper"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// An A4988 style driver wired to a Raspberry Pi.
	d, err := stepdir.New(&stepdir.Opts{
		Step:   gpioreg.ByName("GPIO13"),
		Dir:    gpioreg.ByName("GPIO19"),
		Enable: gpioreg.ByName("GPIO12"),
		// The A4988 EN input is active low.
		InvertEnable: true,
		MicroStep: []gpio.PinOut{
			gpioreg.ByName("GPIO16"),
			gpioreg.ByName("GPIO17"),
			gpioreg.ByName("GPIO20"),
		},
		Resolutions: []stepper.MicroStepResolution{
			stepper.MicroStep1, stepper.MicroStep2, stepper.MicroStep4, stepper.MicroStep8,
			stepper.MicroStep16, stepper.MicroStep32, stepper.MicroStep64, stepper.MicroStep128,
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer d.Halt()

	if err := d.SetMicroStepResolution(stepper.MicroStep16); err != nil {
		log.Fatalf("failed to set resolution: %v", err)
	}
	if err := d.Enable(); err != nil {
		log.Fatalf("failed to enable driver: %v", err)
	}

	c, err := motion.NewController(d, motion.NewTimerSource())
	if err != nil {
		log.Fatal(err)
	}
	defer c.Halt()

	// Cruise at 800 steps per second.
	g, err := ramp.NewTrapezoidal((800 * physic.Hertz).Duration(), 1600, 1600)
	if err != nil {
		log.Fatal(err)
	}
	c.SetRamp(g)

	done := make(chan motion.Event, 1)
	c.SetEventCallback(func(e motion.Event) {
		if e == motion.StepsCompleted {
			done <- e
		}
	})

	// One full revolution of a 200 step motor at 1/16 micro-stepping.
	if err := c.MoveBy(3200); err != nil {
		log.Fatal(err)
	}
	<-done
}
