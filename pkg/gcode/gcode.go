// Package gcode provides the winder's coordinate and command model.
// It builds ordered motion command sequences from symbolic axis targets
// and serializes them in the exact textual form the controller parses.
package gcode

import (
	"strconv"
	"strings"
	"time"

	werrors "winder-go/pkg/errors"
)

// Axis identifies one controllable motion dimension of the winder.
type Axis int

const (
	// AxisX is the wire guide carriage (linear, mm).
	AxisX Axis = iota
	// AxisZ is the traverse (linear, mm).
	AxisZ
	// AxisC is the bobbin spindle (rotary, degrees).
	AxisC

	// NumAxes is the number of positional axes.
	NumAxes = 3
)

// axisOrder is the canonical serialization order. Axis words are always
// emitted in this order regardless of how the command was constructed.
var axisOrder = [NumAxes]Axis{AxisX, AxisZ, AxisC}

// Letter returns the single-letter G-code word for the axis.
func (a Axis) Letter() byte {
	switch a {
	case AxisX:
		return 'X'
	case AxisZ:
		return 'Z'
	case AxisC:
		return 'C'
	}
	return '?'
}

// String returns the axis name.
func (a Axis) String() string {
	return string(a.Letter())
}

// AxisFromLetter returns the axis for a word letter, or false if the
// letter does not name a positional axis.
func AxisFromLetter(c byte) (Axis, bool) {
	switch c {
	case 'X', 'x':
		return AxisX, true
	case 'Z', 'z':
		return AxisZ, true
	case 'C', 'c':
		return AxisC, true
	}
	return 0, false
}

// Axes returns all positional axes in canonical order.
func Axes() [NumAxes]Axis {
	return axisOrder
}

// Code is a command letter-code token (e.g. "G0", "M18").
type Code string

const (
	CodeRapidMove  Code = "G0"
	CodeLinearMove Code = "G1"
	CodeDwell      Code = "G4"
	CodePark       Code = "G27"
	CodeHomeAll    Code = "G28"
	CodeHalt       Code = "M0"
	CodeEnableAll  Code = "M17"
	CodeDisableAll Code = "M18"
)

// IsMotion reports whether the code commands axis motion.
func (c Code) IsMotion() bool {
	return c == CodeRapidMove || c == CodeLinearMove
}

// Command is a single winder instruction: a motion command mapping a
// subset of axes to target positions (plus an optional feedrate), or a
// system command (halt, enable, disable, home, dwell).
type Command struct {
	Code Code

	// Targets maps axes to target positions. Only meaningful for motion
	// commands, where at least one axis must be present.
	Targets map[Axis]float64

	// Feedrate is the commanded speed in mm/s (degrees/s for pure C
	// moves), valid only when HasFeedrate is set. It applies to the
	// command's duration as a whole, not per axis.
	Feedrate    float64
	HasFeedrate bool

	// Pause is the dwell duration for G4 commands.
	Pause time.Duration
}

// NewMove builds a motion command from an axis target map.
// An empty target map is invalid: a move that names no axis is a
// protocol error, not a no-op.
func NewMove(code Code, targets map[Axis]float64) (Command, error) {
	if !code.IsMotion() {
		return Command{}, werrors.UnknownCommandError(string(code))
	}
	if len(targets) == 0 {
		return Command{}, werrors.NoAxesError()
	}
	t := make(map[Axis]float64, len(targets))
	for a, v := range targets {
		t[a] = v
	}
	return Command{Code: code, Targets: t}, nil
}

// RapidMove builds a G0 command.
func RapidMove(targets map[Axis]float64) (Command, error) {
	return NewMove(CodeRapidMove, targets)
}

// LinearMove builds a G1 command.
func LinearMove(targets map[Axis]float64) (Command, error) {
	return NewMove(CodeLinearMove, targets)
}

// WithFeedrate returns a copy of the command with the feedrate word set.
func (c Command) WithFeedrate(feedrate float64) Command {
	c.Feedrate = feedrate
	c.HasFeedrate = true
	return c
}

// Dwell builds a G4 pause command.
func Dwell(d time.Duration) Command {
	return Command{Code: CodeDwell, Pause: d}
}

// Halt builds an M0 command.
func Halt() Command { return Command{Code: CodeHalt} }

// EnableAll builds an M17 command.
func EnableAll() Command { return Command{Code: CodeEnableAll} }

// DisableAll builds an M18 command.
func DisableAll() Command { return Command{Code: CodeDisableAll} }

// HomeAll builds a G28 command.
func HomeAll() Command { return Command{Code: CodeHomeAll} }

// Park builds a G27 command. Park positions are accepted on the wire
// but the controller treats the command as a sequencing no-op.
func Park() Command { return Command{Code: CodePark} }

// Target returns the commanded target for an axis, if present.
func (c Command) Target(a Axis) (float64, bool) {
	v, ok := c.Targets[a]
	return v, ok
}

// String serializes the command in the controller's wire format:
// letter-code token, then axis words in canonical order, each an axis
// letter immediately concatenated with its value, then the feedrate
// word, space separated. Values carry no leading '+' and no
// thousands separators.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Code))
	if c.Code == CodeDwell {
		b.WriteString(" P")
		b.WriteString(strconv.FormatInt(c.Pause.Milliseconds(), 10))
		return b.String()
	}
	for _, a := range axisOrder {
		v, ok := c.Targets[a]
		if !ok {
			continue
		}
		b.WriteByte(' ')
		b.WriteByte(a.Letter())
		b.WriteString(formatValue(v))
	}
	if c.HasFeedrate {
		b.WriteString(" F")
		b.WriteString(formatValue(c.Feedrate))
	}
	return b.String()
}

// formatValue renders a coordinate or feedrate value with the shortest
// decimal representation that round-trips.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
