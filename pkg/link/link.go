// Package link implements the client side of the winder execution
// protocol: one serialized command per line, one ack line per command.
package link

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	werrors "winder-go/pkg/errors"
	"winder-go/pkg/gcode"
	"winder-go/pkg/log"
)

// AckOK is the controller's acceptance reply.
const AckOK = "ok"

// ackErrorPrefix marks a rejection reply; the rest of the line is the
// reason.
const ackErrorPrefix = "error:"

// Dialer opens a transport to the controller.
type Dialer func() (io.ReadWriteCloser, error)

// TCPDialer dials the controller's TCP listener.
func TCPDialer(addr string, timeout time.Duration) Dialer {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}
}

// Client speaks the execution protocol over a dialed transport. A
// connection dropped mid-command is redialed once and the command
// resent, matching controller firmware that resets its line buffer on
// reconnect.
type Client struct {
	mu     sync.Mutex
	dial   Dialer
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	logger *log.Logger
}

// NewClient creates a client that connects lazily on first send.
func NewClient(dial Dialer) *Client {
	return &Client{
		dial:   dial,
		logger: log.GetLogger("link"),
	}
}

// Dial connects a TCP client immediately.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	c := NewClient(TCPDialer(addr, timeout))
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial()
	if err != nil {
		return werrors.LinkError("connect", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Close closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Send transmits one raw protocol line and returns the controller's
// ack. A rejection ack is returned alongside a LINK_REJECTED error.
func (c *Client) Send(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ack, err := c.sendLocked(line)
	if err != nil && retryable(err) {
		c.logger.WithError(err).Warn("connection dropped, redialing")
		c.dropLocked()
		ack, err = c.sendLocked(line)
	}
	if err != nil {
		return "", err
	}

	if reason, rejected := strings.CutPrefix(ack, ackErrorPrefix); rejected {
		return ack, werrors.LinkRejectedError(strings.TrimSpace(reason))
	}
	return ack, nil
}

func (c *Client) sendLocked(line string) (string, error) {
	if err := c.connectLocked(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return "", werrors.LinkError("write", err)
	}
	ack, err := c.reader.ReadString('\n')
	if err != nil {
		return "", werrors.LinkError("read ack", err)
	}
	return strings.TrimSpace(ack), nil
}

// retryable reports whether the failure is a dropped connection worth
// one redial.
func retryable(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Exec serializes and sends a single command.
func (c *Client) Exec(cmd gcode.Command) error {
	_, err := c.Send(cmd.String())
	return err
}

// Run sends a program's framed command sequence in order, stopping at
// the first rejection or transport failure.
func (c *Client) Run(prog *gcode.Program) error {
	for _, cmd := range prog.Commands() {
		if err := c.Exec(cmd); err != nil {
			return err
		}
	}
	return nil
}
