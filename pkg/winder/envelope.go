package winder

import (
	"time"

	"winder-go/pkg/gcode"
	"winder-go/pkg/link"
)

// EnvelopeConfig configures the execution link acquired by an
// Envelope.
type EnvelopeConfig struct {
	// Addr is the controller's TCP address. Ignored when Dial is set.
	Addr string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// Dial overrides the transport, e.g. for a serial-attached
	// controller.
	Dial link.Dialer
}

// Envelope frames command bodies into programs and dispatches them
// over the execution link. It owns the link for its lifetime; Close
// releases it on every exit path.
type Envelope struct {
	client *link.Client
}

// NewEnvelope acquires the execution link.
func NewEnvelope(cfg EnvelopeConfig) (*Envelope, error) {
	dial := cfg.Dial
	if dial == nil {
		dial = link.TCPDialer(cfg.Addr, cfg.DialTimeout)
	}
	return &Envelope{client: link.NewClient(dial)}, nil
}

// Close releases the execution link.
func (e *Envelope) Close() error {
	return e.client.Close()
}

// Oneshot issues a single command and returns once the link
// acknowledges receipt. Motion completion is observed out-of-band.
func (e *Envelope) Oneshot(cmd gcode.Command) error {
	return e.client.Exec(cmd)
}

// Run frames the body into a full program and transmits it as one
// ordered unit. The framing is never omitted: even an empty body is
// sent as halt, enable, home, disable, so actuators are not left
// energized after a program ends.
func (e *Envelope) Run(body ...gcode.Command) error {
	return e.client.Run(gcode.NewProgram(body...))
}

// RunProgram transmits an already-assembled program.
func (e *Envelope) RunProgram(prog *gcode.Program) error {
	return e.client.Run(prog)
}
