// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepmotion is a container for stepper motor motion control
// packages.
//
// The stepper package defines the hardware stepper contract, ramp implements
// velocity profile generators, motion drives a stepper through a timing
// source, and stepdir is a GPIO step/dir implementation of the hardware
// contract.
package stepmotion
