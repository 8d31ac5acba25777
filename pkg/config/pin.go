package config

import (
	"strings"
)

// Pin is a parsed pin specification.
type Pin struct {
	Name   string // bare pin name (e.g. "gpio2", "PA5")
	Invert bool   // inverted logic (! prefix)
	Pullup int    // 1 = pull-up (^), -1 = pull-down (~), 0 = none
}

// PinOptions restricts which modifiers a pin option may carry.
type PinOptions struct {
	CanInvert bool
	CanPullup bool
}

// ParsePin parses a pin specification of the form [^|~][!]name.
// Step pins take no modifiers, direction pins allow '!', endstop pins
// allow both pull and invert prefixes.
func ParsePin(desc string, opts PinOptions) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, NewError("", "", "empty pin specification")
	}

	var p Pin
	if opts.CanPullup && len(d) > 0 {
		switch d[0] {
		case '^':
			p.Pullup = 1
			d = strings.TrimSpace(d[1:])
		case '~':
			p.Pullup = -1
			d = strings.TrimSpace(d[1:])
		}
	}
	if opts.CanInvert && len(d) > 0 && d[0] == '!' {
		p.Invert = true
		d = strings.TrimSpace(d[1:])
	}

	if d == "" {
		return Pin{}, NewError("", "", "empty pin name in specification: "+desc)
	}
	if strings.ContainsAny(d, "^~!: ") {
		return Pin{}, NewError("", "", "invalid characters in pin name: "+desc)
	}

	p.Name = d
	return p, nil
}

// GetPin returns a Pin option value from the section.
func (s *Section) GetPin(option string, opts PinOptions, fallback ...Pin) (Pin, error) {
	if v, ok := s.lookup(option); ok {
		pin, err := ParsePin(v, opts)
		if err != nil {
			return Pin{}, NewError(s.name, option, err.Error())
		}
		return pin, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return Pin{}, ErrMissingOption(s.name, option)
}
