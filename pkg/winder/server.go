package winder

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"winder-go/pkg/gcode"
	"winder-go/pkg/log"
	"winder-go/pkg/metrics"
)

// Common errors
var (
	ErrServerClosed = errors.New("winder: server closed")
)

// Server serves the execution protocol over TCP: one command per
// line, one ack per line. A command is acked on receipt, once it
// parses and is queued; motion completes out-of-band and strictly in
// arrival order across all connections.
type Server struct {
	controller *Controller
	logger     *log.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	queue chan gcode.Command
	conns sync.WaitGroup
	done  chan struct{}
}

// NewServer creates a server feeding the controller.
func NewServer(controller *Controller) *Server {
	return &Server{
		controller: controller,
		logger:     log.GetLogger("server"),
		queue:      make(chan gcode.Command, 64),
		done:       make(chan struct{}),
	}
}

// Start begins listening and serving. It returns once the listener is
// bound; serving continues in the background until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	go s.executeLoop()
	go s.acceptLoop(ln)
	s.logger.Info("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, waits for open connections to finish and
// drains the command queue.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.conns.Wait()
	close(s.queue)
	<-s.done
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.conns.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()
	s.serveLines(conn, conn.RemoteAddr().String())
}

// ServeStream serves the line protocol on an already-open transport,
// e.g. a serial port. It blocks until the transport is closed or hits
// a read error.
func (s *Server) ServeStream(rw io.ReadWriter, name string) {
	s.conns.Add(1)
	defer s.conns.Done()
	s.serveLines(rw, name)
}

func (s *Server) serveLines(rw io.ReadWriter, peer string) {
	logger := s.logger.WithField("peer", peer)
	logger.Debug("connected")

	wm := metrics.Default()
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		wm.LinesReceived.Inc(nil)
		stripped, err := gcode.StripComments(scanner.Text())
		if err != nil {
			logger.WithError(err).Warn("rejected %q", scanner.Text())
			wm.LinesRejected.Inc(nil)
			if !s.ack(rw, "error: "+err.Error()) {
				return
			}
			continue
		}
		line := strings.TrimSpace(stripped)
		if line == "" {
			// Blank and comment lines are accepted no-ops so the
			// client's line/ack lockstep is preserved.
			if !s.ack(rw, "ok") {
				return
			}
			continue
		}

		cmd, err := gcode.Parse(line)
		if err != nil {
			logger.WithError(err).Warn("rejected %q", line)
			wm.LinesRejected.Inc(nil)
			if !s.ack(rw, "error: "+err.Error()) {
				return
			}
			continue
		}

		s.mu.Lock()
		closed := s.closed
		if !closed {
			s.queue <- cmd
			wm.QueueDepth.Set(nil, float64(len(s.queue)))
		}
		s.mu.Unlock()
		if closed {
			s.ack(rw, "error: "+ErrServerClosed.Error())
			return
		}
		if !s.ack(rw, "ok") {
			return
		}
	}
	logger.Debug("disconnected")
}

func (s *Server) ack(w io.Writer, reply string) bool {
	_, err := w.Write([]byte(reply + "\n"))
	return err == nil
}

// executeLoop runs queued commands strictly in order.
func (s *Server) executeLoop() {
	defer close(s.done)
	wm := metrics.Default()
	for cmd := range s.queue {
		if err := s.controller.Execute(cmd); err != nil {
			s.logger.WithError(err).Error("command %q failed", cmd.String())
		}
		wm.QueueDepth.Set(nil, float64(len(s.queue)))
	}
}
