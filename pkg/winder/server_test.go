package winder

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"winder-go/pkg/gcode"
)

func startTestServer(t *testing.T) (*Server, *Controller, *simRig) {
	t.Helper()
	c, rig := newSimController(t)
	s := NewServer(c)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, c, rig
}

func dialTestServer(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func sendLine(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	ack, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read ack for %q: %v", line, err)
	}
	return strings.TrimSpace(ack)
}

func TestServerExecutesProgramInOrder(t *testing.T) {
	s, c, rig := startTestServer(t)
	conn, r := dialTestServer(t, s)

	for _, line := range []string{"M0", "M17", "G28", "G1 Z1 F1", "M18"} {
		if ack := sendLine(t, conn, r, line); ack != "ok" {
			t.Fatalf("ack for %q = %q, want ok", line, ack)
		}
	}

	// M18 is last, so the machine ends de-energized and unhomed with
	// the move's pulses on the wire.
	waitFor(t, func() bool {
		return !c.Enabled() && rig.step[gcode.AxisZ].Rises() >= 100
	})
	if c.Homed() {
		t.Error("still homed after M18")
	}
	if got := rig.step[gcode.AxisZ].Rises(); got != 100 {
		t.Errorf("Z emitted %d pulses, want 100", got)
	}
}

func TestServerRejectsMalformedLines(t *testing.T) {
	s, _, _ := startTestServer(t)
	conn, r := dialTestServer(t, s)

	tests := []struct {
		line string
		want string
	}{
		{"G99", "error:"},
		{"G1", "error:"},     // no axis words
		{"G1 Z1 Z2", "error:"},
		{"G4 P-5", "error:"},
		{"hello", "error:"},
	}
	for _, tt := range tests {
		ack := sendLine(t, conn, r, tt.line)
		if !strings.HasPrefix(ack, tt.want) {
			t.Errorf("ack for %q = %q, want %s prefix", tt.line, ack, tt.want)
		}
	}

	// The connection stays usable after rejections.
	if ack := sendLine(t, conn, r, "M17"); ack != "ok" {
		t.Errorf("ack after rejections = %q, want ok", ack)
	}
}

func TestServerAcksBlankAndCommentLines(t *testing.T) {
	s, _, _ := startTestServer(t)
	conn, r := dialTestServer(t, s)

	for _, line := range []string{"", "   ", "( homing pass )", "; note", "G28 ; home"} {
		if ack := sendLine(t, conn, r, line); ack != "ok" {
			t.Errorf("ack for %q = %q, want ok", line, ack)
		}
	}
}

func TestServerAcksOnReceiptNotCompletion(t *testing.T) {
	s, _, _ := startTestServer(t)
	conn, r := dialTestServer(t, s)

	start := time.Now()
	ack := sendLine(t, conn, r, "G4 P500")
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("ack took %v, want receipt ack well before the 500ms dwell ends", elapsed)
	}
	if ack != "ok" {
		t.Errorf("ack = %q, want ok", ack)
	}
}

func TestServerSerializesAcrossConnections(t *testing.T) {
	s, c, _ := startTestServer(t)

	connA, rA := dialTestServer(t, s)
	connB, rB := dialTestServer(t, s)

	if ack := sendLine(t, connA, rA, "G28"); ack != "ok" {
		t.Fatalf("ack = %q", ack)
	}
	if ack := sendLine(t, connB, rB, "G1 Z1 F1"); ack != "ok" {
		t.Fatalf("ack = %q", ack)
	}

	waitFor(t, func() bool {
		pos := c.Position()
		return c.Homed() && pos[gcode.AxisZ] == 1
	})
}

func TestEnvelopeRunAgainstServer(t *testing.T) {
	s, c, rig := startTestServer(t)

	env, err := NewEnvelope(EnvelopeConfig{Addr: s.Addr().String(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	defer env.Close()

	body := linearMove(t, map[gcode.Axis]float64{gcode.AxisZ: 1, gcode.AxisC: 10}).WithFeedrate(10)
	if err := env.Run(body); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The framed program ends with M18: de-energized, unhomed, zeroed.
	waitFor(t, func() bool {
		return rig.step[gcode.AxisC].Rises() >= 100 && !c.Enabled()
	})
	if c.Homed() {
		t.Error("still homed after framed program")
	}
	if pos := c.Position(); pos != [gcode.NumAxes]float64{} {
		t.Errorf("position = %v, want zeros after disable", pos)
	}
}

func TestEnvelopeOneshot(t *testing.T) {
	s, c, _ := startTestServer(t)

	env, err := NewEnvelope(EnvelopeConfig{Addr: s.Addr().String(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	defer env.Close()

	if err := env.Oneshot(gcode.EnableAll()); err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	waitFor(t, func() bool { return c.Enabled() })
}

func TestServeStreamSpeaksTheSameProtocol(t *testing.T) {
	s, c, _ := startTestServer(t)

	near, far := net.Pipe()
	t.Cleanup(func() { near.Close(); far.Close() })
	go s.ServeStream(far, "pipe")

	r := bufio.NewReader(near)
	if ack := sendLine(t, near, r, "M17"); ack != "ok" {
		t.Fatalf("ack = %q, want ok", ack)
	}
	if ack := sendLine(t, near, r, "G99"); !strings.HasPrefix(ack, "error:") {
		t.Fatalf("ack = %q, want error", ack)
	}
	waitFor(t, func() bool { return c.Enabled() })
}
