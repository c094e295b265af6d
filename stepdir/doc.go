// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepdir drives step/dir stepper motor drivers (A4988, DRV8825,
// TMC22xx and similar) over GPIO.
//
// Each Step call emits one pulse on the step pin with the direction pin set
// beforehand. Micro-step resolution is selected through the driver's MSx
// pins when they are wired, and a fault input can be watched to report
// stepper.FaultDetected events.
package stepdir
