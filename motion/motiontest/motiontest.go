// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package motiontest is meant to be used to test motion controllers against
// a simulated timing source driven by a virtual clock.
package motiontest

import (
	"sync"
	"time"

	"github.com/GermanBionicSystems/stepmotion/motion"
)

// TimingSource implements motion.TimingSource without real time: the test
// harness fires pending ticks explicitly and the virtual clock accumulates
// the armed intervals.
type TimingSource struct {
	mu       sync.Mutex
	tick     func()
	interval time.Duration
	elapsed  time.Duration
	fired    int
	// StartErr, when set, is returned by Start without arming.
	StartErr error
	// StopErr, when set, is returned by Stop. The source still disarms.
	StopErr error
}

// Init implements motion.TimingSource.
func (t *TimingSource) Init(tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = tick
	return nil
}

// Start implements motion.TimingSource.
func (t *TimingSource) Start(interval time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.StartErr != nil {
		return t.StartErr
	}
	t.interval = interval
	return nil
}

// Stop implements motion.TimingSource.
func (t *TimingSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = 0
	return t.StopErr
}

// Interval implements motion.TimingSource.
func (t *TimingSource) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Fire advances the virtual clock past the armed interval and invokes the
// tick callback once. It reports whether a tick was pending.
func (t *TimingSource) Fire() bool {
	t.mu.Lock()
	if t.interval == 0 || t.tick == nil {
		t.mu.Unlock()
		return false
	}
	t.elapsed += t.interval
	t.interval = 0
	t.fired++
	tick := t.tick
	t.mu.Unlock()
	tick()
	return true
}

// Run fires pending ticks until the source is disarmed, at most limit times,
// and returns how many ticks fired.
func (t *TimingSource) Run(limit int) int {
	for n := 0; n < limit; n++ {
		if !t.Fire() {
			return n
		}
	}
	return limit
}

// Elapsed returns the virtual time consumed by fired ticks.
func (t *TimingSource) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Fired returns the number of ticks fired so far.
func (t *TimingSource) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

var _ motion.TimingSource = &TimingSource{}
