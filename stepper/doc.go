// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepper defines the contract between motion controllers and
// stepper motor hardware.
//
// A Stepper knows how to energize its coils and emit a single micro-step in
// a given direction; it has no notion of velocity or position. Motion
// planning on top of this contract is provided by the motion package.
package stepper
