// Package motion translates motion commands into the discrete step
// counts and pulse-timing parameters the per-axis real-time engines
// consume. All validation happens here, before dispatch: a spec that
// reaches an engine is always well formed.
package motion

import (
	"math"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/gcode"
)

// Engine clock parameters. The per-axis loops run at a fixed 500 kHz
// cadence (2 microseconds per cycle); a step pulse is asserted for one
// cycle, so the shortest producible step interval is two cycles.
const (
	ClockHz          = 500_000
	PulseWidthCycles = 1
	MinCyclesPerStep = PulseWidthCycles + 1
)

// Direction is the logical travel direction of an axis.
type Direction int8

const (
	DirPositive Direction = 1
	DirNegative Direction = -1
)

func (d Direction) String() string {
	if d == DirNegative {
		return "negative"
	}
	return "positive"
}

// PulseSpec is the per-axis product of translating one motion command:
// a counted pulse train at a fixed cadence. Steps == 0 is a legal no-op
// and the engine must treat it as an immediate return, never one pulse.
type PulseSpec struct {
	Steps         uint32
	Dir           Direction
	CyclesPerStep uint32
}

// Validate checks the spec against the hardware timing limits.
func (s PulseSpec) Validate(axis string) error {
	if s.Dir != DirPositive && s.Dir != DirNegative {
		return werrors.SpecError(axis, "pulse spec has no direction")
	}
	if s.CyclesPerStep < MinCyclesPerStep {
		return werrors.CadenceError(axis, s.CyclesPerStep, MinCyclesPerStep)
	}
	return nil
}

// NoOp reports whether the spec commands no movement.
func (s PulseSpec) NoOp() bool {
	return s.Steps == 0
}

// HomingSpec is an uncounted pulse train toward the limit switch.
// Termination is event driven; there is no step count.
type HomingSpec struct {
	Dir           Direction
	CyclesPerStep uint32
}

// Validate checks the spec against the hardware timing limits.
func (s HomingSpec) Validate(axis string) error {
	if s.Dir != DirPositive && s.Dir != DirNegative {
		return werrors.SpecError(axis, "homing spec has no direction")
	}
	if s.CyclesPerStep < MinCyclesPerStep {
		return werrors.CadenceError(axis, s.CyclesPerStep, MinCyclesPerStep)
	}
	return nil
}

// AxisCalibration describes one axis's physical scaling.
type AxisCalibration struct {
	// MicronsPerStep is the distance one step advances the axis, in
	// thousandths of the axis unit (micrometers for the linear X/Z
	// axes, millidegrees for the rotary C axis).
	MicronsPerStep float64

	// HomeDir is the travel direction toward the limit switch.
	HomeDir Direction
}

// Translator converts target coordinates and feedrates into per-axis
// pulse specs, given distance-per-step calibration and the engines'
// fixed clock rate.
type Translator struct {
	clockHz float64
	axes    [gcode.NumAxes]AxisCalibration
}

// NewTranslator builds a Translator for the given axis calibrations.
func NewTranslator(axes [gcode.NumAxes]AxisCalibration) (*Translator, error) {
	for i, cal := range axes {
		axis := gcode.Axis(i)
		if cal.MicronsPerStep <= 0 {
			return nil, werrors.CalibrationError(axis.String(),
				"microns_per_step must be positive")
		}
		if cal.HomeDir != DirPositive && cal.HomeDir != DirNegative {
			return nil, werrors.CalibrationError(axis.String(),
				"homing direction must be set")
		}
	}
	return &Translator{clockHz: ClockHz, axes: axes}, nil
}

// Calibration returns the calibration for an axis.
func (t *Translator) Calibration(axis gcode.Axis) AxisCalibration {
	return t.axes[axis]
}

// Steps converts a position delta (in axis units) into a step count and
// direction. Rounding is half away from zero so drift does not
// accumulate in one direction across many commands.
func (t *Translator) Steps(axis gcode.Axis, current, target float64) (uint32, Direction) {
	deltaMicrons := (target - current) * 1000
	steps := RoundHalfAway(math.Abs(deltaMicrons) / t.axes[axis].MicronsPerStep)
	dir := DirPositive
	if deltaMicrons < 0 {
		dir = DirNegative
	}
	return uint32(steps), dir
}

// CyclesPerStep converts a feedrate (axis units per second) into the
// engine clock interval between successive step pulses.
func (t *Translator) CyclesPerStep(axis gcode.Axis, feedrate float64) (uint32, error) {
	if feedrate <= 0 {
		return 0, werrors.CalibrationError(axis.String(), "feedrate must be positive")
	}
	stepsPerSecond := feedrate * 1000 / t.axes[axis].MicronsPerStep
	cycles := RoundHalfAway(t.clockHz / stepsPerSecond)
	if cycles < MinCyclesPerStep {
		return 0, werrors.CadenceError(axis.String(), uint32(cycles), MinCyclesPerStep)
	}
	if cycles > math.MaxUint32 {
		return 0, werrors.CalibrationError(axis.String(), "feedrate is too slow to represent")
	}
	return uint32(cycles), nil
}

// Pulse translates a single-axis move into a PulseSpec. A target equal
// to the current position yields a zero-step spec; the minimum legal
// cadence is used as a placeholder since no pulse will be emitted.
func (t *Translator) Pulse(axis gcode.Axis, current, target, feedrate float64) (PulseSpec, error) {
	steps, dir := t.Steps(axis, current, target)
	spec := PulseSpec{Steps: steps, Dir: dir, CyclesPerStep: MinCyclesPerStep}
	if steps == 0 {
		return spec, nil
	}
	cycles, err := t.CyclesPerStep(axis, feedrate)
	if err != nil {
		return PulseSpec{}, err
	}
	spec.CyclesPerStep = cycles
	return spec, spec.Validate(axis.String())
}

// Homing translates a homing feedrate into a HomingSpec for the axis,
// directed toward its limit switch.
func (t *Translator) Homing(axis gcode.Axis, feedrate float64) (HomingSpec, error) {
	cycles, err := t.CyclesPerStep(axis, feedrate)
	if err != nil {
		return HomingSpec{}, err
	}
	spec := HomingSpec{Dir: t.axes[axis].HomeDir, CyclesPerStep: cycles}
	return spec, spec.Validate(axis.String())
}

// Command translates a (possibly multi-axis) motion command into one
// PulseSpec per participating axis. The feedrate applies to the command
// as a whole: when the spindle moves it runs at the commanded rate and
// the linear axes are stretched to finish in the same duration; when
// only X and Z move, the rate is split between them by the
// right-triangle rule; a single moving axis runs at the rate directly.
func (t *Translator) Command(cmd gcode.Command, current [gcode.NumAxes]float64, feedrate float64) (map[gcode.Axis]PulseSpec, error) {
	if !cmd.Code.IsMotion() {
		return nil, werrors.RuntimeError("not a motion command: " + string(cmd.Code))
	}
	if len(cmd.Targets) == 0 {
		return nil, werrors.NoAxesError()
	}

	specs := make(map[gcode.Axis]PulseSpec, len(cmd.Targets))
	dist := [gcode.NumAxes]float64{}
	for _, axis := range gcode.Axes() {
		target, ok := cmd.Target(axis)
		if !ok {
			continue
		}
		steps, dir := t.Steps(axis, current[axis], target)
		dist[axis] = math.Abs(target - current[axis])
		specs[axis] = PulseSpec{Steps: steps, Dir: dir, CyclesPerStep: MinCyclesPerStep}
	}

	moving := func(axis gcode.Axis) bool {
		s, ok := specs[axis]
		return ok && s.Steps > 0
	}

	setCadence := func(axis gcode.Axis, rate float64) error {
		cycles, err := t.CyclesPerStep(axis, rate)
		if err != nil {
			return err
		}
		s := specs[axis]
		s.CyclesPerStep = cycles
		specs[axis] = s
		return s.Validate(axis.String())
	}

	switch {
	case moving(gcode.AxisC):
		// Spindle sets the pace; stretch the other axes to match.
		if err := setCadence(gcode.AxisC, feedrate); err != nil {
			return nil, err
		}
		c := specs[gcode.AxisC]
		duration := uint64(c.Steps) * uint64(c.CyclesPerStep)
		for _, axis := range []gcode.Axis{gcode.AxisX, gcode.AxisZ} {
			if !moving(axis) {
				continue
			}
			s := specs[axis]
			cycles := RoundHalfAway(float64(duration) / float64(s.Steps))
			if cycles < MinCyclesPerStep {
				return nil, werrors.CadenceError(axis.String(), uint32(cycles), MinCyclesPerStep)
			}
			if cycles > math.MaxUint32 {
				return nil, werrors.CalibrationError(axis.String(), "stretched cadence is too slow to represent")
			}
			s.CyclesPerStep = uint32(cycles)
			specs[axis] = s
		}

	case moving(gcode.AxisX) && moving(gcode.AxisZ):
		// Split the feedrate across the two linear axes so the combined
		// travel runs at the commanded rate.
		x, z := dist[gcode.AxisX], dist[gcode.AxisZ]
		hyp := math.Hypot(x, z)
		if err := setCadence(gcode.AxisX, feedrate*x/hyp); err != nil {
			return nil, err
		}
		if err := setCadence(gcode.AxisZ, feedrate*z/hyp); err != nil {
			return nil, err
		}

	default:
		for axis := range specs {
			if !moving(axis) {
				continue
			}
			if err := setCadence(axis, feedrate); err != nil {
				return nil, err
			}
		}
	}

	return specs, nil
}

// RoundHalfAway rounds to the nearest integer with ties rounded away
// from zero.
func RoundHalfAway(x float64) int64 {
	if x >= 0 {
		return int64(math.Floor(x + 0.5))
	}
	return int64(math.Ceil(x - 0.5))
}
