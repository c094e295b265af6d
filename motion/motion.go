// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion

import (
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/stepmotion/ramp"
	"github.com/GermanBionicSystems/stepmotion/stepper"
)

// Event is a motion event delivered through the controller callback.
//
// StepsCompleted and Stopped are produced by the controller itself; the
// remaining kinds forward hardware events reported by the stepper driver.
type Event uint8

const (
	// StepsCompleted is emitted when the steps of a MoveBy/MoveTo plan have
	// all been executed.
	StepsCompleted Event = iota
	// Stopped is emitted when a Stop request has brought the motor to rest.
	Stopped
	// StallDetected forwards stepper.StallDetected.
	StallDetected
	// LeftEndStopDetected forwards stepper.LeftEndStopDetected.
	LeftEndStopDetected
	// RightEndStopDetected forwards stepper.RightEndStopDetected.
	RightEndStopDetected
	// FaultDetected forwards stepper.FaultDetected.
	FaultDetected
)

func (e Event) String() string {
	switch e {
	case StepsCompleted:
		return "steps completed"
	case Stopped:
		return "stopped"
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

// EventFunc receives motion events. It is invoked outside the controller
// lock, so it may call back into the Controller.
type EventFunc func(Event)

// Controller sequences a stepper motor through moves planned by a
// ramp.Generator and timed by a TimingSource.
//
// The zero value is not usable; call NewController.
type Controller struct {
	mu        sync.Mutex
	dev       stepper.Stepper
	ts        TimingSource
	gen       ramp.Generator
	position  int32
	target    int32
	direction stepper.Direction
	// active is true between the controller arming the timing source and
	// the plan finishing or being canceled. A tick dispatched before a
	// cancellation observes active == false and does nothing.
	active   bool
	stopping bool
	callback EventFunc
}

// NewController binds a hardware stepper and a timing source.
//
// Hardware events reported by dev are forwarded to the controller's event
// callback. No ramp is bound yet; MoveBy, MoveTo and Run fail with
// stepper.ErrNotReady until SetRamp is called.
func NewController(dev stepper.Stepper, ts TimingSource) (*Controller, error) {
	if dev == nil || ts == nil {
		return nil, fmt.Errorf("%w: stepper and timing source are required", stepper.ErrInvalidArgument)
	}
	c := &Controller{dev: dev, ts: ts, direction: stepper.Positive}
	if err := ts.Init(c.tick); err != nil {
		return nil, err
	}
	dev.SetEventCallback(c.forward)
	return c, nil
}

func (c *Controller) String() string {
	return "motion(" + c.dev.String() + ")"
}

// Halt implements conn.Resource. It cancels any in-flight motion
// immediately, without deceleration, and halts the hardware stepper.
//
// The position counter keeps its last value, which may be out of sync with
// physical reality if the motor was moving fast.
func (c *Controller) Halt() error {
	c.mu.Lock()
	c.disarm()
	c.target = 0
	c.stopping = false
	if c.gen != nil {
		c.gen.Reset()
	}
	c.mu.Unlock()
	return c.dev.Halt()
}

// SetRamp binds the ramp generator used by subsequent moves.
func (c *Controller) SetRamp(g ramp.Generator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen = g
}

// SetEventCallback subscribes to motion events. Passing nil clears the
// subscription.
func (c *Controller) SetEventCallback(f EventFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = f
}

// SetPosition replaces the position counter. It has no motion side effect.
func (c *Controller) SetPosition(position int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
}

// Position returns the current position in micro-steps.
func (c *Controller) Position() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// IsMoving reports whether a move is in progress.
func (c *Controller) IsMoving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// MoveBy plans a relative move of |microSteps| micro-steps in the direction
// of its sign and returns once the first step is scheduled.
//
// The count accumulates into the pending relative target, so two MoveBy
// calls with opposite counts return the motor to its starting position even
// when the second lands mid-flight. A call whose direction opposes the
// current motion first decelerates the motor to rest, then resumes toward
// the accumulated target.
func (c *Controller) MoveBy(microSteps int32) error {
	c.mu.Lock()
	ev, fire, err := c.moveByLocked(microSteps)
	cb := c.callback
	c.mu.Unlock()
	if fire && cb != nil {
		cb(ev)
	}
	return err
}

// MoveTo plans a move to the given absolute position. It is equivalent to
// MoveBy(position - Position()).
func (c *Controller) MoveTo(position int32) error {
	c.mu.Lock()
	delta := position - c.position
	c.mu.Unlock()
	return c.MoveBy(delta)
}

// Run starts a continuous move in the given direction; it runs until Stop or
// Halt. The relative target is pinned to a sentinel and not consumed by
// emitted steps.
func (c *Controller) Run(d stepper.Direction) error {
	c.mu.Lock()
	err := c.runLocked(d)
	c.mu.Unlock()
	return err
}

// Stop brings the motor to rest using the ramp's deceleration and returns
// immediately; Stopped is emitted once the motor is at rest. A ramp without
// a deceleration phase stops at once.
func (c *Controller) Stop() error {
	c.mu.Lock()
	ev, fire, err := c.stopLocked()
	cb := c.callback
	c.mu.Unlock()
	if fire && cb != nil {
		cb(ev)
	}
	return err
}

func (c *Controller) moveByLocked(microSteps int32) (Event, bool, error) {
	if c.gen == nil {
		return 0, false, fmt.Errorf("%w: no ramp bound", stepper.ErrNotReady)
	}
	c.stopping = false
	if microSteps == 0 && c.active {
		// Nothing to add; leave the active plan alone.
		return 0, false, nil
	}
	dir := stepper.Positive
	if microSteps < 0 {
		dir = stepper.Negative
	}
	if c.target == math.MaxInt32 || c.target == math.MinInt32 {
		// A continuous run is replaced, not accumulated into.
		c.target = microSteps
	} else {
		c.target += microSteps
	}
	planned := uint32(abs64(int64(microSteps)))
	if c.active && c.direction != dir {
		// Moving the opposite way: decelerate to rest first; the exhaustion
		// tick re-plans toward the accumulated target.
		stopSteps, err := c.gen.PrepareStop()
		if err != nil {
			return 0, false, err
		}
		if stopSteps > 0 {
			return 0, false, c.arm(c.gen.NextInterval())
		}
		// The ramp stops instantly: flip now and plan the remainder.
		if c.target == 0 {
			c.disarm()
			return StepsCompleted, true, nil
		}
		dir = directionOf(c.target)
		planned = targetSteps(c.target)
	}
	wasIdle := !c.active
	if wasIdle {
		// From rest the whole accumulated target is planned, which also
		// picks up a plan a failed timer start left behind.
		planned = targetSteps(c.target)
		if c.target != 0 {
			dir = directionOf(c.target)
		}
	}
	total, err := c.gen.PrepareMove(planned)
	if err != nil {
		return 0, false, err
	}
	if total > 0 {
		c.direction = dir
		return 0, false, c.arm(c.gen.NextInterval())
	}
	if wasIdle {
		return StepsCompleted, true, nil
	}
	return 0, false, nil
}

func (c *Controller) runLocked(d stepper.Direction) error {
	if c.gen == nil {
		return fmt.Errorf("%w: no ramp bound", stepper.ErrNotReady)
	}
	if d != stepper.Positive && d != stepper.Negative {
		return fmt.Errorf("%w: bad direction %d", stepper.ErrInvalidArgument, d)
	}
	c.stopping = false
	if d == stepper.Positive {
		c.target = math.MaxInt32
	} else {
		c.target = math.MinInt32
	}
	if c.active && c.direction != d {
		stopSteps, err := c.gen.PrepareStop()
		if err != nil {
			return err
		}
		if stopSteps > 0 {
			return c.arm(c.gen.NextInterval())
		}
	}
	if _, err := c.gen.PrepareMove(ramp.ContinuousSteps); err != nil {
		return err
	}
	c.direction = d
	return c.arm(c.gen.NextInterval())
}

func (c *Controller) stopLocked() (Event, bool, error) {
	c.stopping = false
	if c.gen == nil || !c.active {
		c.target = 0
		c.disarm()
		return Stopped, true, nil
	}
	steps, err := c.gen.PrepareStop()
	if err != nil {
		return 0, false, err
	}
	if steps == 0 {
		c.target = 0
		c.disarm()
		return Stopped, true, nil
	}
	if steps > math.MaxInt32-1 {
		steps = math.MaxInt32 - 1
	}
	c.target = int32(steps) * int32(c.direction)
	c.stopping = true
	return 0, false, c.arm(c.gen.NextInterval())
}

// tick is the timing source callback: emit one step, account for it, and
// schedule the next one.
func (c *Controller) tick() {
	c.mu.Lock()
	ev, fire := c.tickLocked()
	cb := c.callback
	c.mu.Unlock()
	if fire && cb != nil {
		cb(ev)
	}
}

func (c *Controller) tickLocked() (Event, bool) {
	if !c.active {
		// The plan was canceled after this tick was dispatched.
		return 0, false
	}
	if err := c.dev.Step(c.direction); err != nil {
		// The move goes on; accounting reflects intended motion. Callers
		// needing strict accounting stop via Halt.
		log.Errorf("motion: failed to step: %v", err)
	}
	c.position += int32(c.direction)
	if c.target != math.MaxInt32 && c.target != math.MinInt32 {
		c.target -= int32(c.direction)
	}
	next := c.gen.NextInterval()
	if next > 0 {
		// On a re-arm failure the plan is left in place for the next
		// mutator to retry; position is never unwound.
		c.arm(next)
		return 0, false
	}
	c.disarm()
	if c.target != 0 {
		// A queued move was left behind by a reversal or a mid-flight
		// re-plan; the motor is at rest now, take it over.
		c.direction = directionOf(c.target)
		total, err := c.gen.PrepareMove(targetSteps(c.target))
		if err != nil {
			log.Errorf("motion: failed to plan queued move: %v", err)
			c.target = 0
		} else if total > 0 {
			c.arm(c.gen.NextInterval())
			return 0, false
		} else {
			c.target = 0
		}
	}
	if c.stopping {
		c.stopping = false
		return Stopped, true
	}
	return StepsCompleted, true
}

func (c *Controller) forward(e stepper.Event) {
	var ev Event
	switch e {
	case stepper.StallDetected:
		ev = StallDetected
	case stepper.LeftEndStopDetected:
		ev = LeftEndStopDetected
	case stepper.RightEndStopDetected:
		ev = RightEndStopDetected
	case stepper.FaultDetected:
		ev = FaultDetected
	default:
		return
	}
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// arm schedules the next tick. Called with the lock held.
func (c *Controller) arm(interval time.Duration) error {
	if err := c.ts.Start(interval); err != nil {
		log.Errorf("motion: failed to start timing source: %v", err)
		c.active = false
		return err
	}
	c.active = true
	return nil
}

// disarm cancels the pending tick. Called with the lock held.
func (c *Controller) disarm() {
	if err := c.ts.Stop(); err != nil {
		log.Errorf("motion: failed to stop timing source: %v", err)
	}
	c.active = false
}

func directionOf(target int32) stepper.Direction {
	if target < 0 {
		return stepper.Negative
	}
	return stepper.Positive
}

// targetSteps converts a signed relative target into a plannable step count.
func targetSteps(target int32) uint32 {
	if target == math.MaxInt32 || target == math.MinInt32 {
		return ramp.ContinuousSteps
	}
	return uint32(abs64(int64(target)))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ conn.Resource = &Controller{}
