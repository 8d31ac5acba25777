// Package status serves machine state snapshots over HTTP and pushes
// them to websocket subscribers on change.
package status

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"winder-go/pkg/log"
	"winder-go/pkg/metrics"
	"winder-go/pkg/winder"
)

// Source supplies the snapshots the server publishes.
type Source interface {
	GetStatus() winder.Status
}

// Config holds server configuration.
type Config struct {
	// Addr is the HTTP listen address (e.g. ":8080").
	Addr string

	// Source supplies snapshots.
	Source Source

	// PollInterval is how often the source is sampled for changes.
	// Defaults to 250ms.
	PollInterval time.Duration

	// Heartbeat pushes an unchanged snapshot after this long without
	// one, so subscribers can detect a dead feed. Defaults to 10s.
	Heartbeat time.Duration
}

// Server publishes machine state over two endpoints: GET /status
// returns one JSON snapshot, /websocket streams snapshots whenever the
// state changes.
type Server struct {
	cfg      Config
	logger   *log.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	clients map[int64]*client
	nextID  int64

	running atomic.Bool
	stopped chan struct{}
}

// New creates a status server.
func New(cfg Config) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 10 * time.Second
	}
	return &Server{
		cfg:    cfg,
		logger: log.GetLogger("status"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[int64]*client),
		stopped: make(chan struct{}),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/websocket", s.handleWebsocket)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{Handler: mux}
	s.running.Store(true)

	go s.broadcastLoop()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("serve failed")
		}
	}()

	s.logger.Info("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all websocket subscribers.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stopped)

	s.mu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*client)
	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cfg.Source.GetStatus()); err != nil {
		s.logger.WithError(err).Error("encode snapshot")
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.clients[id] = c
	s.mu.Unlock()

	// The current snapshot is delivered immediately on subscribe.
	if data, err := json.Marshal(s.cfg.Source.GetStatus()); err == nil {
		c.enqueue(data)
	}

	go c.writePump()
	go func() {
		// Subscribers send nothing; reading just detects disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		c.close()
	}()
}

// broadcastLoop samples the source and pushes snapshots that differ
// from the last one sent, plus a heartbeat.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// Seed with the current state; subscribers get their first
	// snapshot on subscribe, so only changes are broadcast.
	last, _ := json.Marshal(s.cfg.Source.GetStatus())
	lastPush := time.Now()

	for {
		select {
		case <-s.stopped:
			return
		case <-ticker.C:
		}

		data, err := json.Marshal(s.cfg.Source.GetStatus())
		if err != nil {
			s.logger.WithError(err).Error("marshal snapshot")
			continue
		}
		if bytes.Equal(data, last) && time.Since(lastPush) < s.cfg.Heartbeat {
			continue
		}
		last = data
		lastPush = time.Now()

		s.mu.Lock()
		for _, c := range s.clients {
			c.enqueue(data)
		}
		s.mu.Unlock()
	}
}

// client is one websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		// Slow subscriber; drop the snapshot, a newer one follows.
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writePump() {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
