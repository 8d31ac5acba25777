package stepper

import (
	"sync"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/motion"
)

// State is the engine's current state machine position.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateChecking
	StatePulsing
	StateSleeping
	StateDone
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateChecking:
		return "checking"
	case StatePulsing:
		return "pulsing"
	case StateSleeping:
		return "sleeping"
	case StateDone:
		return "done"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a command (including Idle,
// where the engine waits for the next spec).
func (s State) Terminal() bool {
	return s == StateIdle || s == StateDone || s == StateTriggered
}

// Config holds the wiring for one axis's pulse engine.
type Config struct {
	// Axis is the axis name, for errors and logging.
	Axis string

	// Step and Dir are the engine's exclusively owned output lines.
	Step Line
	Dir  Line

	// InvertDir flips the direction line polarity.
	InvertDir bool

	// Clock paces the loop. Defaults to WallClock.
	Clock Clock
}

// PulseEngine emits a fixed number of step pulses at a fixed cadence,
// toggling the direction output exactly once at the start. Once a spec
// with a non-zero step count is loaded the engine runs to completion
// deterministically; there is no cancellation path.
type PulseEngine struct {
	cfg Config

	mu     sync.Mutex
	state  State
	pulses uint64

	done chan struct{}
}

// NewPulseEngine creates a pulse engine for one axis.
func NewPulseEngine(cfg Config) *PulseEngine {
	if cfg.Clock == nil {
		cfg.Clock = WallClock{}
	}
	return &PulseEngine{
		cfg:  cfg,
		done: make(chan struct{}, 1),
	}
}

// Axis returns the axis name.
func (e *PulseEngine) Axis() string { return e.cfg.Axis }

// State returns the engine's current state.
func (e *PulseEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pulses returns the total number of pulses emitted since creation.
func (e *PulseEngine) Pulses() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pulses
}

// Done returns a channel receiving one signal per completed spec.
func (e *PulseEngine) Done() <-chan struct{} {
	return e.done
}

// Run executes one pulse spec to completion. It is the engine's
// real-time loop and blocks for the spec's whole duration:
// steps x cycles_per_step clock cycles, with jitter bounded by one
// cycle. The spec must have been validated at translation time; Run
// re-checks it before any motion begins, never mid-train.
func (e *PulseEngine) Run(spec motion.PulseSpec) error {
	if err := spec.Validate(e.cfg.Axis); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return werrors.BusyError(e.cfg.Axis)
	}
	e.state = StateLoading
	e.mu.Unlock()

	// A zero step count is an immediate no-op: no pulse, no direction
	// write.
	if spec.Steps == 0 {
		e.finish(StateDone)
		return nil
	}

	// Loading: the direction output is set exactly once, before the
	// first pulse.
	e.cfg.Dir.Set((spec.Dir == motion.DirPositive) != e.cfg.InvertDir)

	for remaining := spec.Steps; remaining > 0; remaining-- {
		e.setState(StatePulsing)
		e.cfg.Step.Set(true)
		e.cfg.Clock.Sleep(motion.PulseWidthCycles)
		e.cfg.Step.Set(false)

		e.setState(StateSleeping)
		e.cfg.Clock.Sleep(spec.CyclesPerStep - motion.PulseWidthCycles)

		e.mu.Lock()
		e.pulses++
		e.mu.Unlock()
	}

	e.finish(StateDone)
	return nil
}

func (e *PulseEngine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// finish signals completion to the coordinating layer and returns the
// engine to Idle, ready for the next spec.
func (e *PulseEngine) finish(terminal State) {
	e.setState(terminal)
	select {
	case e.done <- struct{}{}:
	default:
	}
	e.setState(StateIdle)
}
