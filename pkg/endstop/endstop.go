// Package endstop models the per-axis limit switches the homing
// engines sample, independent of their electrical binding.
package endstop

import (
	"sync"
	"time"
)

// State represents the last sampled state of a limit switch.
type State int

const (
	StateUnknown State = iota
	StateOpen
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Config holds configuration for a limit switch.
type Config struct {
	// Axis is the axis the switch belongs to.
	Axis string

	// Pin is the configured input pin name.
	Pin string

	// Inverted flips the raw sample (normally-closed wiring).
	Inverted bool

	// Debounce is the minimum time between distinct trigger events.
	Debounce time.Duration
}

// DefaultConfig returns a default limit switch configuration.
func DefaultConfig() Config {
	return Config{
		Debounce: time.Millisecond,
	}
}

// LimitSwitch is a single axis's limit switch. Triggered samples the
// underlying input, so a LimitSwitch can be handed directly to a homing
// engine as its Switch.
type LimitSwitch struct {
	mu sync.RWMutex

	axis     string
	pin      string
	inverted bool
	debounce time.Duration

	query func() bool

	state       State
	lastTrigger time.Time
	triggers    uint64

	onTrigger func()
}

// New creates a limit switch.
func New(cfg Config) *LimitSwitch {
	return &LimitSwitch{
		axis:     cfg.Axis,
		pin:      cfg.Pin,
		inverted: cfg.Inverted,
		debounce: cfg.Debounce,
		state:    StateUnknown,
	}
}

// SetQuery sets the callback that samples the raw input level.
func (s *LimitSwitch) SetQuery(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = fn
}

// SetTriggerCallback sets a callback invoked on each debounced
// open-to-triggered transition.
func (s *LimitSwitch) SetTriggerCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrigger = fn
}

// Axis returns the axis name.
func (s *LimitSwitch) Axis() string { return s.axis }

// Pin returns the configured pin name.
func (s *LimitSwitch) Pin() string { return s.pin }

// Triggered samples the switch and returns whether it is asserted.
// A switch with no query callback reads as never asserted; homing
// against an unwired switch is a configuration mistake the caller
// checks with Wired.
func (s *LimitSwitch) Triggered() bool {
	s.mu.Lock()
	query := s.query
	inverted := s.inverted
	s.mu.Unlock()

	if query == nil {
		return false
	}

	asserted := query()
	if inverted {
		asserted = !asserted
	}

	s.mu.Lock()
	prev := s.state
	if asserted {
		s.state = StateTriggered
	} else {
		s.state = StateOpen
	}

	var fire func()
	if asserted && prev != StateTriggered {
		now := time.Now()
		if now.Sub(s.lastTrigger) >= s.debounce {
			s.lastTrigger = now
			s.triggers++
			fire = s.onTrigger
		}
	}
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
	return asserted
}

// Wired reports whether a query callback is attached.
func (s *LimitSwitch) Wired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query != nil
}

// LastState returns the state seen by the most recent sample.
func (s *LimitSwitch) LastState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Triggers returns the number of debounced trigger events observed.
func (s *LimitSwitch) Triggers() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.triggers
}

// Status holds limit switch status information.
type Status struct {
	Axis        string    `json:"axis"`
	Pin         string    `json:"pin"`
	State       string    `json:"state"`
	Triggers    uint64    `json:"triggers"`
	LastTrigger time.Time `json:"last_trigger"`
}

// GetStatus returns the current switch status.
func (s *LimitSwitch) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Axis:        s.axis,
		Pin:         s.pin,
		State:       s.state.String(),
		Triggers:    s.triggers,
		LastTrigger: s.lastTrigger,
	}
}
