// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion

import (
	"sync"
	"time"
)

// TimingSource is a reschedulable one-shot countdown shared between a
// controller and its timer hardware.
//
// Start arms the source to invoke the tick callback once after interval;
// calling Start while armed replaces the pending countdown. Implementations
// invoke the callback from their own context (a timer goroutine, an
// interrupt); the Controller serializes against that internally.
type TimingSource interface {
	// Init binds the tick callback. It is called exactly once, before any
	// Start.
	Init(tick func()) error
	// Start arms the countdown. The callback fires once after interval.
	Start(interval time.Duration) error
	// Stop cancels a pending countdown.
	Stop() error
	// Interval returns the armed interval, 0 if the source is disarmed.
	Interval() time.Duration
}

// TimerSource is a TimingSource backed by the runtime timer, suitable for
// hosts where scheduling jitter is acceptable.
type TimerSource struct {
	mu       sync.Mutex
	tick     func()
	timer    *time.Timer
	interval time.Duration
}

// NewTimerSource returns an unarmed TimerSource.
func NewTimerSource() *TimerSource {
	return &TimerSource{}
}

// Init implements TimingSource.
func (t *TimerSource) Init(tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = tick
	return nil
}

// Start implements TimingSource.
func (t *TimerSource) Start(interval time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.timer = time.AfterFunc(interval, t.fire)
	} else {
		t.timer.Reset(interval)
	}
	t.interval = interval
	return nil
}

// Stop implements TimingSource.
func (t *TimerSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.interval = 0
	return nil
}

// Interval implements TimingSource.
func (t *TimerSource) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *TimerSource) fire() {
	t.mu.Lock()
	// Disarm first; the callback re-arms if the move goes on.
	t.interval = 0
	tick := t.tick
	t.mu.Unlock()
	if tick != nil {
		tick()
	}
}

var _ TimingSource = &TimerSource{}
