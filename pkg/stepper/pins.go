// Package stepper implements the per-axis real-time pulse generation
// and homing engines. Each engine exclusively owns its step and
// direction output lines and runs as an independent loop with
// clock-synchronous state; the only suspension points are fixed
// duration sleeps, never scheduler yields on external I/O.
package stepper

import (
	"sync"
	"sync/atomic"
	"time"

	"winder-go/pkg/motion"
)

// Line is a digital output line (step or direction).
// The register-level binding of the line is environment specific.
type Line interface {
	Set(high bool)
}

// Switch is a digital input sampled by the homing engine.
type Switch interface {
	Triggered() bool
}

// Clock paces an engine. Sleep blocks for the given number of engine
// clock cycles (2 microseconds each at the 500 kHz engine rate).
type Clock interface {
	Sleep(cycles uint32)
}

// WallClock is a Clock backed by real time.
type WallClock struct{}

// Sleep blocks for cycles engine clock periods.
func (WallClock) Sleep(cycles uint32) {
	time.Sleep(time.Duration(cycles) * (time.Second / motion.ClockHz))
}

// LineFunc adapts a function to the Line interface.
type LineFunc func(high bool)

func (f LineFunc) Set(high bool) { f(high) }

// NullLine is a Line wired to nothing.
type NullLine struct{}

func (NullLine) Set(bool) {}

// MemoryLine is a Line that records its transitions, for simulation
// and tests.
type MemoryLine struct {
	mu     sync.Mutex
	level  bool
	rises  uint64
	writes uint64
	trace  []bool
}

// Set records a level write.
func (l *MemoryLine) Set(high bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if high && !l.level {
		l.rises++
	}
	l.level = high
	l.writes++
	l.trace = append(l.trace, high)
}

// Level returns the current line level.
func (l *MemoryLine) Level() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Rises returns the number of low-to-high transitions (pulses).
func (l *MemoryLine) Rises() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rises
}

// Writes returns the total number of level writes.
func (l *MemoryLine) Writes() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// Trace returns a copy of every level written, in order.
func (l *MemoryLine) Trace() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, len(l.trace))
	copy(out, l.trace)
	return out
}

// CountingSwitch is a Switch that asserts after a fixed number of
// samples, simulating an axis reaching its limit switch.
type CountingSwitch struct {
	// TriggerAfter is the number of samples before the switch asserts.
	// 0 means triggered from the first sample.
	TriggerAfter uint64

	samples atomic.Uint64
}

// Triggered samples the switch.
func (s *CountingSwitch) Triggered() bool {
	n := s.samples.Add(1)
	return n > s.TriggerAfter
}

// Samples returns the number of times the switch was sampled.
func (s *CountingSwitch) Samples() uint64 {
	return s.samples.Load()
}

// LatchedSwitch is a Switch set and cleared externally, for manual
// control in simulation.
type LatchedSwitch struct {
	triggered atomic.Bool
}

// Trigger asserts the switch.
func (s *LatchedSwitch) Trigger() { s.triggered.Store(true) }

// Reset clears the switch.
func (s *LatchedSwitch) Reset() { s.triggered.Store(false) }

// Triggered samples the switch.
func (s *LatchedSwitch) Triggered() bool { return s.triggered.Load() }

// CountingClock is a Clock that returns immediately and accumulates
// the cycle budget, for simulation and timing assertions.
type CountingClock struct {
	cycles atomic.Uint64
}

// Sleep accounts the cycles without blocking.
func (c *CountingClock) Sleep(cycles uint32) {
	c.cycles.Add(uint64(cycles))
}

// Cycles returns the total cycles slept.
func (c *CountingClock) Cycles() uint64 {
	return c.cycles.Load()
}
