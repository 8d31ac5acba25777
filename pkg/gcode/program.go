package gcode

import (
	"strconv"
	"strings"

	werrors "winder-go/pkg/errors"
)

// Program is an ordered sequence of commands wrapped in the mandatory
// execution framing. The preamble halts the controller, energizes the
// steppers and homes every axis before any body command runs; the
// postamble always de-energizes the steppers, even for an empty body,
// so actuators are never left energized after a program ends.
type Program struct {
	body []Command
}

// NewProgram creates a program with the given body commands.
func NewProgram(body ...Command) *Program {
	p := &Program{}
	p.body = append(p.body, body...)
	return p
}

// Add appends commands to the program body.
func (p *Program) Add(cmds ...Command) {
	p.body = append(p.body, cmds...)
}

// Body returns a copy of the body commands, without framing.
func (p *Program) Body() []Command {
	out := make([]Command, len(p.body))
	copy(out, p.body)
	return out
}

// Commands returns the fully framed command sequence:
// halt, enable-all, home-all, body, disable-all.
func (p *Program) Commands() []Command {
	out := make([]Command, 0, len(p.body)+4)
	out = append(out, Halt(), EnableAll(), HomeAll())
	out = append(out, p.body...)
	out = append(out, DisableAll())
	return out
}

// Serialize renders the framed program, one command per line,
// terminated by a single trailing newline.
func (p *Program) Serialize() string {
	var b strings.Builder
	for _, cmd := range p.Commands() {
		b.WriteString(cmd.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseProgram parses a serialized program body. Blank lines and
// comments are skipped. The input may be a framed program or a bare
// body; framing commands parse like any other command and the caller
// decides whether to re-frame.
func ParseProgram(text string) ([]Command, error) {
	var cmds []Command
	for i, line := range strings.Split(text, "\n") {
		stripped, err := StripComments(line)
		if err != nil {
			return nil, err
		}
		if stripped == "" {
			continue
		}
		cmd, err := Parse(stripped)
		if err != nil {
			if werr, ok := err.(*werrors.WinderError); ok {
				werr.Message = werr.Message + " (line " + strconv.Itoa(i+1) + ")"
			}
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
