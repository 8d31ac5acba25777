package stepper

import (
	"sync"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/motion"
)

// HomingConfig holds the wiring for one axis's homing engine.
type HomingConfig struct {
	// Axis is the axis name, for errors and logging.
	Axis string

	// Step and Dir are the engine's exclusively owned output lines.
	Step Line
	Dir  Line

	// InvertDir flips the direction line polarity.
	InvertDir bool

	// Limit is the axis's limit switch input.
	Limit Switch

	// Clock paces the loop. Defaults to WallClock.
	Clock Clock
}

// HomingEngine emits pulses indefinitely at a fixed cadence until the
// limit switch input is asserted. The switch is sampled once per pulse
// cycle, before pulsing, so the axis never overshoots the switch by a
// full step and the rest position is deterministic relative to the
// switch. Trigger is the engine's only early exit.
type HomingEngine struct {
	cfg HomingConfig

	mu     sync.Mutex
	state  State
	pulses uint64

	done chan struct{}
}

// NewHomingEngine creates a homing engine for one axis.
func NewHomingEngine(cfg HomingConfig) *HomingEngine {
	if cfg.Clock == nil {
		cfg.Clock = WallClock{}
	}
	return &HomingEngine{
		cfg:  cfg,
		done: make(chan struct{}, 1),
	}
}

// Axis returns the axis name.
func (e *HomingEngine) Axis() string { return e.cfg.Axis }

// State returns the engine's current state.
func (e *HomingEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done returns a channel receiving one signal per completed homing run.
func (e *HomingEngine) Done() <-chan struct{} {
	return e.done
}

// Run executes one homing spec: it drives the axis toward the limit
// switch at the spec's cadence and returns the number of pulses emitted
// before the switch was observed asserted. No pulse is emitted in or
// after the cycle that observed the trigger.
func (e *HomingEngine) Run(spec motion.HomingSpec) (uint64, error) {
	if err := spec.Validate(e.cfg.Axis); err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return 0, werrors.BusyError(e.cfg.Axis)
	}
	e.state = StateLoading
	e.mu.Unlock()

	// Loading: direction toward the switch, set exactly once.
	e.cfg.Dir.Set((spec.Dir == motion.DirPositive) != e.cfg.InvertDir)

	var emitted uint64
	for {
		e.setState(StateChecking)
		if e.cfg.Limit.Triggered() {
			break
		}

		e.setState(StatePulsing)
		e.cfg.Step.Set(true)
		e.cfg.Clock.Sleep(motion.PulseWidthCycles)
		e.cfg.Step.Set(false)

		e.setState(StateSleeping)
		e.cfg.Clock.Sleep(spec.CyclesPerStep - motion.PulseWidthCycles)

		emitted++
		e.mu.Lock()
		e.pulses++
		e.mu.Unlock()
	}

	e.finish()
	return emitted, nil
}

func (e *HomingEngine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// finish emits the completion signal and returns the engine to Idle.
func (e *HomingEngine) finish() {
	e.setState(StateTriggered)
	select {
	case e.done <- struct{}{}:
	default:
	}
	e.setState(StateIdle)
}
