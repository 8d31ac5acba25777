package endstop

import (
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateOpen, "open"},
		{StateTriggered, "triggered"},
		{StateUnknown, "unknown"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestUnwiredSwitchNeverTriggers(t *testing.T) {
	s := New(Config{Axis: "x", Pin: "gpio14"})

	if s.Wired() {
		t.Error("Wired() = true for a switch with no query callback")
	}
	if s.Triggered() {
		t.Error("unwired switch reads asserted")
	}
	if s.LastState() != StateUnknown {
		t.Errorf("LastState() = %s, want unknown", s.LastState())
	}
}

func TestTriggeredSamplesQuery(t *testing.T) {
	level := false
	s := New(Config{Axis: "z", Pin: "gpio15"})
	s.SetQuery(func() bool { return level })

	if s.Triggered() {
		t.Error("open switch reads asserted")
	}
	if s.LastState() != StateOpen {
		t.Errorf("LastState() = %s, want open", s.LastState())
	}

	level = true
	if !s.Triggered() {
		t.Error("closed switch reads open")
	}
	if s.LastState() != StateTriggered {
		t.Errorf("LastState() = %s, want triggered", s.LastState())
	}
}

func TestInvertedSwitch(t *testing.T) {
	s := New(Config{Axis: "x", Pin: "!gpio14", Inverted: true})
	s.SetQuery(func() bool { return false })

	if !s.Triggered() {
		t.Error("normally-closed switch with low input should read asserted")
	}
}

func TestTriggerCallbackFiresOncePerEdge(t *testing.T) {
	level := false
	fired := 0
	s := New(Config{Axis: "c", Debounce: 0})
	s.SetQuery(func() bool { return level })
	s.SetTriggerCallback(func() { fired++ })

	s.Triggered()
	level = true
	s.Triggered()
	s.Triggered() // still asserted, same edge
	s.Triggered()

	if fired != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}
	if s.Triggers() != 1 {
		t.Errorf("Triggers() = %d, want 1", s.Triggers())
	}

	level = false
	s.Triggered()
	level = true
	s.Triggered()

	if fired != 2 {
		t.Errorf("callback fired %d times after second edge, want 2", fired)
	}
}

func TestDebounceSuppressesChatter(t *testing.T) {
	level := false
	s := New(Config{Axis: "x", Debounce: time.Hour})
	s.SetQuery(func() bool { return level })

	level = true
	s.Triggered()
	level = false
	s.Triggered()
	level = true
	s.Triggered()

	if s.Triggers() != 1 {
		t.Errorf("Triggers() = %d, want 1 (chatter within debounce window)", s.Triggers())
	}
}

func TestGetStatus(t *testing.T) {
	s := New(Config{Axis: "z", Pin: "gpio15"})
	s.SetQuery(func() bool { return true })
	s.Triggered()

	st := s.GetStatus()
	if st.Axis != "z" || st.Pin != "gpio15" {
		t.Errorf("status identity = %s/%s, want z/gpio15", st.Axis, st.Pin)
	}
	if st.State != "triggered" {
		t.Errorf("status state = %s, want triggered", st.State)
	}
	if st.Triggers != 1 {
		t.Errorf("status triggers = %d, want 1", st.Triggers)
	}
}
