package gcode

import (
	"strings"
	"testing"
	"time"
)

func TestEmptyProgramFraming(t *testing.T) {
	p := NewProgram()
	got := p.Serialize()
	want := "M0\nM17\nG28\nM18\n"

	if got != want {
		t.Errorf("Serialize() = %q, want %q", got, want)
	}
	if n := strings.Count(got, "\n"); n != 4 {
		t.Errorf("empty program has %d lines, want 4", n)
	}
	if !strings.HasSuffix(got, "\n") || strings.HasSuffix(got, "\n\n") {
		t.Error("program must end with exactly one trailing newline")
	}
}

func TestProgramFramingInvariants(t *testing.T) {
	move := mustMove(t, CodeLinearMove, map[Axis]float64{AxisZ: 5}).WithFeedrate(2)
	p := NewProgram(move)
	p.Add(mustMove(t, CodeRapidMove, map[Axis]float64{AxisX: 1}))

	cmds := p.Commands()
	if len(cmds) != 6 {
		t.Fatalf("Commands() len = %d, want 6", len(cmds))
	}

	// Exactly one halt and one home-all, both before any motion.
	halts, homes := 0, 0
	firstMotion := -1
	for i, c := range cmds {
		switch c.Code {
		case CodeHalt:
			halts++
		case CodeHomeAll:
			homes++
		}
		if c.Code.IsMotion() && firstMotion < 0 {
			firstMotion = i
		}
	}
	if halts != 1 || homes != 1 {
		t.Errorf("halts = %d, homes = %d, want exactly 1 of each", halts, homes)
	}
	if cmds[0].Code != CodeHalt {
		t.Errorf("first command = %s, want M0", cmds[0].Code)
	}
	if cmds[1].Code != CodeEnableAll {
		t.Errorf("second command = %s, want M17", cmds[1].Code)
	}
	if cmds[2].Code != CodeHomeAll {
		t.Errorf("third command = %s, want G28", cmds[2].Code)
	}
	if firstMotion >= 0 && firstMotion < 3 {
		t.Error("motion command precedes the preamble")
	}
	if cmds[len(cmds)-1].Code != CodeDisableAll {
		t.Errorf("last command = %s, want M18", cmds[len(cmds)-1].Code)
	}
}

func TestProgramBodyOrderPreserved(t *testing.T) {
	moves := []Command{
		mustMove(t, CodeRapidMove, map[Axis]float64{AxisX: 1}),
		mustMove(t, CodeLinearMove, map[Axis]float64{AxisZ: 2}),
		mustMove(t, CodeLinearMove, map[Axis]float64{AxisC: 3}),
	}
	p := NewProgram(moves...)

	body := p.Commands()[3 : 3+len(moves)]
	for i, c := range body {
		if c.String() != moves[i].String() {
			t.Errorf("body[%d] = %q, want %q", i, c.String(), moves[i].String())
		}
	}
}

func TestParseProgram(t *testing.T) {
	text := "M0\nM17\nG28\n(wind the first layer)\nG1 Z12 C10 F10 ; layer 1\n\nM18\n"
	cmds, err := ParseProgram(text)
	if err != nil {
		t.Fatalf("ParseProgram error: %v", err)
	}
	if len(cmds) != 5 {
		t.Fatalf("len = %d, want 5", len(cmds))
	}
	if cmds[3].String() != "G1 Z12 C10 F10" {
		t.Errorf("body command = %q, want %q", cmds[3].String(), "G1 Z12 C10 F10")
	}
}

func TestParseProgramReportsLine(t *testing.T) {
	_, err := ParseProgram("M0\nG0 Y1\n")
	if err == nil {
		t.Fatal("ParseProgram should fail on unknown axis")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q should name line 2", err.Error())
	}
}

func TestProgramSerializeParseRoundTrip(t *testing.T) {
	p := NewProgram(
		mustMove(t, CodeLinearMove, map[Axis]float64{AxisZ: 12, AxisC: 10}).WithFeedrate(10),
		Dwell(100*time.Millisecond),
	)
	cmds, err := ParseProgram(p.Serialize())
	if err != nil {
		t.Fatalf("ParseProgram error: %v", err)
	}
	if len(cmds) != 6 {
		t.Fatalf("len = %d, want 6", len(cmds))
	}
	for i, c := range p.Commands() {
		if cmds[i].String() != c.String() {
			t.Errorf("round-trip[%d] = %q, want %q", i, cmds[i].String(), c.String())
		}
	}
}
