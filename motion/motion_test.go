// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion_test

import (
	"errors"
	"io/ioutil"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/GermanBionicSystems/stepmotion/motion"
	"github.com/GermanBionicSystems/stepmotion/motion/motiontest"
	"github.com/GermanBionicSystems/stepmotion/ramp"
	"github.com/GermanBionicSystems/stepmotion/stepper"
	"github.com/GermanBionicSystems/stepmotion/stepper/steppertest"
)

// rig wires a controller to a fake stepper and a simulated timing source and
// records every delivered event.
type rig struct {
	dev    *steppertest.Stepper
	ts     *motiontest.TimingSource
	c      *motion.Controller
	events *[]motion.Event
}

func newRig(t *testing.T, g ramp.Generator) *rig {
	t.Helper()
	dev := &steppertest.Stepper{}
	ts := &motiontest.TimingSource{}
	c, err := motion.NewController(dev, ts)
	if err != nil {
		t.Fatal(err)
	}
	var events []motion.Event
	c.SetEventCallback(func(e motion.Event) {
		events = append(events, e)
	})
	if g != nil {
		c.SetRamp(g)
	}
	return &rig{dev: dev, ts: ts, c: c, events: &events}
}

func constantRamp(t *testing.T, interval time.Duration) *ramp.Constant {
	t.Helper()
	g, err := ramp.NewConstant(interval)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func trapezoidalRamp(t *testing.T, interval time.Duration, accel, decel uint32) *ramp.Trapezoidal {
	t.Helper()
	g, err := ramp.NewTrapezoidal(interval, accel, decel)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func wantEvents(t *testing.T, got []motion.Event, want ...motion.Event) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMoveByWithoutRamp(t *testing.T) {
	r := newRig(t, nil)
	if err := r.c.MoveBy(10); !errors.Is(err, stepper.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got: %v", err)
	}
	if err := r.c.Run(stepper.Positive); !errors.Is(err, stepper.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got: %v", err)
	}
}

func TestConstantMoveBy(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	r.c.SetPosition(0)
	if err := r.c.MoveBy(10); err != nil {
		t.Fatal(err)
	}
	if !r.c.IsMoving() {
		t.Fatal("controller should be moving")
	}
	if n := r.ts.Run(100); n != 10 {
		t.Fatalf("fired %d ticks, want 10", n)
	}
	if r.c.IsMoving() {
		t.Fatal("controller should be at rest")
	}
	if got := r.c.Position(); got != 10 {
		t.Fatalf("position = %d, want 10", got)
	}
	if got := r.ts.Elapsed(); got != 10*time.Millisecond {
		t.Fatalf("elapsed = %v, want 10ms", got)
	}
	if got := r.dev.Net(); got != 10 {
		t.Fatalf("net hardware steps = %d, want 10", got)
	}
	wantEvents(t, *r.events, motion.StepsCompleted)
}

func TestMoveByZero(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	if err := r.c.MoveBy(0); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(10); n != 0 {
		t.Fatalf("fired %d ticks, want 0", n)
	}
	if len(r.dev.Steps) != 0 {
		t.Fatalf("emitted %d steps, want 0", len(r.dev.Steps))
	}
	wantEvents(t, *r.events, motion.StepsCompleted)
}

func TestSetPositionRoundTrip(t *testing.T) {
	r := newRig(t, nil)
	for _, p := range []int32{0, 1, -1, 42, -2147483648, 2147483647} {
		r.c.SetPosition(p)
		if got := r.c.Position(); got != p {
			t.Fatalf("Position() = %d, want %d", got, p)
		}
	}
}

func TestMoveTo(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	r.c.SetPosition(5)
	if err := r.c.MoveTo(25); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(100); n != 20 {
		t.Fatalf("fired %d ticks, want 20", n)
	}
	if got := r.c.Position(); got != 25 {
		t.Fatalf("position = %d, want 25", got)
	}
	// Replay is idempotent: the position is already reached.
	if err := r.c.MoveTo(25); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(10); n != 0 {
		t.Fatalf("fired %d ticks on replay, want 0", n)
	}
	if got := r.c.Position(); got != 25 {
		t.Fatalf("position after replay = %d, want 25", got)
	}
	// Back to negative territory.
	if err := r.c.MoveTo(-5); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(100); n != 30 {
		t.Fatalf("fired %d ticks, want 30", n)
	}
	if got := r.c.Position(); got != -5 {
		t.Fatalf("position = %d, want -5", got)
	}
	wantEvents(t, *r.events, motion.StepsCompleted, motion.StepsCompleted, motion.StepsCompleted)
}

// TestMoveByRoundTrip nets two opposite moves to the starting position, the
// second landing mid-flight on a ramp that stops instantly.
func TestMoveByRoundTrip(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	r.c.SetPosition(0)
	if err := r.c.MoveBy(10); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if !r.ts.Fire() {
			t.Fatalf("tick %d not pending", i)
		}
	}
	if err := r.c.MoveBy(-10); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(100); n != 3 {
		t.Fatalf("fired %d ticks after reversal, want 3", n)
	}
	if got := r.c.Position(); got != 0 {
		t.Fatalf("position = %d, want 0", got)
	}
	wantEvents(t, *r.events, motion.StepsCompleted)
}

// TestMoveByExtend lengthens an in-flight move in the same direction; the
// exhaustion tick picks up the remainder.
func TestMoveByExtend(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	if err := r.c.MoveBy(10); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		r.ts.Fire()
	}
	if err := r.c.MoveBy(5); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(100); n != 11 {
		t.Fatalf("fired %d ticks after extension, want 11", n)
	}
	if got := r.c.Position(); got != 15 {
		t.Fatalf("position = %d, want 15", got)
	}
	wantEvents(t, *r.events, motion.StepsCompleted)
}

// TestTrapezoidalReversal reverses during cruise: one deceleration to rest,
// then the accumulated remainder in the new direction, ending at the origin.
func TestTrapezoidalReversal(t *testing.T) {
	r := newRig(t, trapezoidalRamp(t, time.Millisecond, 500, 500))
	r.c.SetPosition(0)
	if err := r.c.MoveBy(5000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1200; i++ {
		if !r.ts.Fire() {
			t.Fatalf("tick %d not pending", i)
		}
	}
	if got := r.c.Position(); got != 1200 {
		t.Fatalf("position at reversal = %d, want 1200", got)
	}
	if err := r.c.MoveBy(-5000); err != nil {
		t.Fatal(err)
	}
	// 1000 deceleration steps still forward, then 2200 steps back.
	if n := r.ts.Run(10000); n != 3200 {
		t.Fatalf("fired %d ticks after reversal, want 3200", n)
	}
	if got := r.c.Position(); got != 0 {
		t.Fatalf("position = %d, want 0", got)
	}
	if got := r.dev.Net(); got != 0 {
		t.Fatalf("net hardware steps = %d, want 0", got)
	}
	wantEvents(t, *r.events, motion.StepsCompleted)
}

// TestRunStopDuringAcceleration stops a continuous run 50 steps in; the
// controller owes exactly the deceleration remainder, then reports Stopped.
func TestRunStopDuringAcceleration(t *testing.T) {
	r := newRig(t, trapezoidalRamp(t, time.Millisecond, 500, 500))
	r.c.SetPosition(0)
	if err := r.c.Run(stepper.Positive); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if !r.ts.Fire() {
			t.Fatalf("tick %d not pending", i)
		}
	}
	if err := r.c.Stop(); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(1000); n != 50 {
		t.Fatalf("fired %d deceleration ticks, want 50", n)
	}
	if got := r.c.Position(); got != 100 {
		t.Fatalf("position = %d, want 100", got)
	}
	if r.c.IsMoving() {
		t.Fatal("controller should be at rest")
	}
	wantEvents(t, *r.events, motion.Stopped)
}

func TestStopWhileIdle(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	if err := r.c.Stop(); err != nil {
		t.Fatal(err)
	}
	wantEvents(t, *r.events, motion.Stopped)
}

// TestStopConstantIsImmediate verifies a ramp without deceleration stops
// without further ticks.
func TestStopConstantIsImmediate(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	if err := r.c.MoveBy(1000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		r.ts.Fire()
	}
	if err := r.c.Stop(); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(10); n != 0 {
		t.Fatalf("fired %d ticks after stop, want 0", n)
	}
	if got := r.c.Position(); got != 7 {
		t.Fatalf("position = %d, want 7", got)
	}
	wantEvents(t, *r.events, motion.Stopped)
}

// TestRunHalt cancels a continuous run without deceleration; the position
// equals the number of ticks fired.
func TestRunHalt(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	r.c.SetPosition(0)
	if err := r.c.Run(stepper.Positive); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 25; i++ {
		if !r.ts.Fire() {
			t.Fatalf("tick %d not pending", i)
		}
	}
	if err := r.c.Halt(); err != nil {
		t.Fatal(err)
	}
	if r.ts.Fire() {
		t.Fatal("tick pending after halt")
	}
	if got := r.c.Position(); got != 25 {
		t.Fatalf("position = %d, want 25", got)
	}
	if r.c.IsMoving() {
		t.Fatal("controller should be at rest")
	}
	if r.dev.Enabled {
		t.Fatal("hardware should be halted")
	}
	if len(*r.events) != 0 {
		t.Fatalf("unexpected events: %v", *r.events)
	}
}

// TestRunReverse reverses a continuous run; the new sentinel replaces the
// old one after a decelerated stop.
func TestRunReverse(t *testing.T) {
	r := newRig(t, trapezoidalRamp(t, time.Millisecond, 500, 500))
	r.c.SetPosition(0)
	if err := r.c.Run(stepper.Positive); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2500; i++ {
		r.ts.Fire()
	}
	if err := r.c.Run(stepper.Negative); err != nil {
		t.Fatal(err)
	}
	// Decelerate to rest (1000 steps from cruise), then accelerate the
	// other way.
	for i := 0; i < 1100; i++ {
		if !r.ts.Fire() {
			t.Fatalf("tick %d not pending", i)
		}
	}
	if got := r.c.Position(); got != 2500+1000-100 {
		t.Fatalf("position = %d, want %d", got, 2500+1000-100)
	}
	if !r.c.IsMoving() {
		t.Fatal("controller should still be running")
	}
	if err := r.c.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestRunBadDirection(t *testing.T) {
	r := newRig(t, constantRamp(t, time.Millisecond))
	if err := r.c.Run(stepper.Direction(0)); !errors.Is(err, stepper.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got: %v", err)
	}
}

func TestHardwareEventForwarding(t *testing.T) {
	r := newRig(t, nil)
	for _, test := range []struct {
		hw   stepper.Event
		want motion.Event
	}{
		{stepper.StallDetected, motion.StallDetected},
		{stepper.LeftEndStopDetected, motion.LeftEndStopDetected},
		{stepper.RightEndStopDetected, motion.RightEndStopDetected},
		{stepper.FaultDetected, motion.FaultDetected},
	} {
		r.dev.EmitEvent(test.hw)
		got := *r.events
		if len(got) == 0 || got[len(got)-1] != test.want {
			t.Fatalf("forwarding %v: events %v, want last %v", test.hw, got, test.want)
		}
	}
}

// TestStepFailureDoesNotAbort keeps stepping through hardware errors;
// position accounting reflects intended motion.
func TestStepFailureDoesNotAbort(t *testing.T) {
	out := log.StandardLogger().Out
	log.SetOutput(ioutil.Discard)
	defer log.SetOutput(out)

	r := newRig(t, constantRamp(t, time.Millisecond))
	r.dev.StepErr = errors.New("transport glitch")
	if err := r.c.MoveBy(5); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(100); n != 5 {
		t.Fatalf("fired %d ticks, want 5", n)
	}
	if got := r.c.Position(); got != 5 {
		t.Fatalf("position = %d, want 5", got)
	}
	wantEvents(t, *r.events, motion.StepsCompleted)
}

// TestTimingSourceStartFailure surfaces the error and leaves the controller
// retryable.
func TestTimingSourceStartFailure(t *testing.T) {
	out := log.StandardLogger().Out
	log.SetOutput(ioutil.Discard)
	defer log.SetOutput(out)

	r := newRig(t, constantRamp(t, time.Millisecond))
	r.ts.StartErr = errors.New("counter busy")
	if err := r.c.MoveBy(5); err == nil {
		t.Fatal("expected an error")
	}
	if got := r.c.Position(); got != 0 {
		t.Fatalf("position = %d, want 0", got)
	}
	// The next mutator retries successfully.
	r.ts.StartErr = nil
	if err := r.c.MoveBy(0); err != nil {
		t.Fatal(err)
	}
	if n := r.ts.Run(100); n != 5 {
		t.Fatalf("fired %d ticks, want 5", n)
	}
	if got := r.c.Position(); got != 5 {
		t.Fatalf("position = %d, want 5", got)
	}
}

func TestControllerString(t *testing.T) {
	r := newRig(t, nil)
	if got := r.c.String(); got != "motion(steppertest)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestNewControllerValidation(t *testing.T) {
	if _, err := motion.NewController(nil, &motiontest.TimingSource{}); !errors.Is(err, stepper.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got: %v", err)
	}
	if _, err := motion.NewController(&steppertest.Stepper{}, nil); !errors.Is(err, stepper.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got: %v", err)
	}
}
