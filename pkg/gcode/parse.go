package gcode

import (
	"strconv"
	"strings"
	"time"

	werrors "winder-go/pkg/errors"
)

// Parse parses one serialized command line back into a Command.
// Parsing is the inverse of Command.String: parsing a serialized command
// recovers the same code, axis targets and feedrate.
//
// Comment handling matches the program file format: a line wrapped in
// parentheses is a comment, and anything after ';' is stripped.
func Parse(line string) (Command, error) {
	stripped, err := StripComments(line)
	if err != nil {
		return Command{}, err
	}
	if stripped == "" {
		return Command{}, werrors.ParseError(line, "empty command")
	}

	fields := strings.Fields(stripped)
	code := Code(strings.ToUpper(fields[0]))

	switch code {
	case CodeHalt, CodeEnableAll, CodeDisableAll, CodeHomeAll:
		if len(fields) > 1 {
			return Command{}, werrors.ParseError(line, "unexpected words after "+string(code))
		}
		return Command{Code: code}, nil

	case CodeDwell:
		if len(fields) != 2 {
			return Command{}, werrors.ParseError(line, "G4 requires exactly one P word")
		}
		word := fields[1]
		if word[0] != 'P' && word[0] != 'p' {
			return Command{}, werrors.WordError(word, "G4 takes only a P word")
		}
		ms, err := strconv.ParseInt(word[1:], 10, 64)
		if err != nil || ms < 0 {
			return Command{}, werrors.WordError(word, "pause must be a non-negative integer of milliseconds")
		}
		return Dwell(time.Duration(ms) * time.Millisecond), nil

	case CodeRapidMove, CodeLinearMove:
		cmd := Command{Code: code, Targets: make(map[Axis]float64)}
		for _, word := range fields[1:] {
			if err := parseWord(&cmd, word); err != nil {
				return Command{}, err
			}
		}
		if len(cmd.Targets) == 0 {
			return Command{}, werrors.NoAxesError()
		}
		return cmd, nil

	case CodePark:
		// Park positions are allowed but ignored downstream.
		cmd := Command{Code: code, Targets: make(map[Axis]float64)}
		for _, word := range fields[1:] {
			if err := parseWord(&cmd, word); err != nil {
				return Command{}, err
			}
		}
		if cmd.HasFeedrate {
			return Command{}, werrors.WordError("F", "park takes no feedrate word")
		}
		return cmd, nil
	}

	return Command{}, werrors.UnknownCommandError(fields[0])
}

// parseWord parses one axis or feedrate word into the command.
func parseWord(cmd *Command, word string) error {
	if len(word) < 2 {
		return werrors.WordError(word, "word must be a letter followed by a value")
	}
	letter := word[0]
	value, err := strconv.ParseFloat(word[1:], 64)
	if err != nil {
		return werrors.WordError(word, "value is not a number")
	}

	if letter == 'F' || letter == 'f' {
		if cmd.HasFeedrate {
			return werrors.WordError(word, "duplicate feedrate word")
		}
		if value <= 0 {
			return werrors.WordError(word, "feedrate must be positive")
		}
		cmd.Feedrate = value
		cmd.HasFeedrate = true
		return nil
	}

	axis, ok := AxisFromLetter(letter)
	if !ok {
		return werrors.WordError(word, "unknown axis letter")
	}
	if _, dup := cmd.Targets[axis]; dup {
		return werrors.WordError(word, "duplicate axis word")
	}
	cmd.Targets[axis] = value
	return nil
}

// StripComments strips G-code comments from a line and trims whitespace.
// Returns an empty string for blank and comment-only lines. A line
// starting with '(' must also end with ')'.
func StripComments(line string) (string, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return "", nil
	}
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return "", werrors.ParseError(line, "mismatched parenthesis in comment")
		}
		return "", nil
	}
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return s, nil
}
