// Package observer streams tick summaries to local WebSocket clients.
package observer

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Garsondee/Evac-Sense/internal/evac"
)

// DefaultQueue is the per-client backlog before messages are dropped.
const DefaultQueue = 64

const writeWait = 5 * time.Second

// Message is the envelope sent to observers.
type Message struct {
	Type     string           `json:"type"` // TICK or BYE
	Scenario string           `json:"scenario,omitempty"`
	Report   *evac.TickReport `json:"report,omitempty"`
}

type client struct {
	id  string
	out chan []byte
}

// Server fans tick reports out to connected observers. A client that falls
// behind loses messages instead of stalling the simulation.
type Server struct {
	log      *log.Logger
	scenario string
	queue    int

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
	latest  []byte
	closed  bool
}

// NewServer creates a server. queue <= 0 selects DefaultQueue.
func NewServer(scenario string, queue int, logger *log.Logger) *Server {
	if queue <= 0 {
		queue = DefaultQueue
	}
	return &Server{
		log:      logger,
		scenario: scenario,
		queue:    queue,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes /ws, /latest and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.WSHandler())
	mux.HandleFunc("/latest", s.LatestHandler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	return mux
}

// Publish sends r to every client. It never blocks.
func (s *Server) Publish(r evac.TickReport) error {
	b, err := json.Marshal(Message{Type: "TICK", Scenario: s.scenario, Report: &r})
	if err != nil {
		return fmt.Errorf("observer: marshal tick %d: %w", r.Tick, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.latest = b
	for _, c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Clients returns the number of connected observers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Close says goodbye to every client and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, c := range s.clients {
		close(c.out)
		delete(s.clients, id)
	}
}

func (s *Server) join() (*client, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, false
	}
	c := &client{
		id:  fmt.Sprintf("O%d", s.nextID.Add(1)),
		out: make(chan []byte, s.queue),
	}
	s.clients[c.id] = c
	return c, s.latest, true
}

func (s *Server) leave(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.out)
	}
}

// LatestHandler serves the most recent tick as JSON, or 204 before the
// first one.
func (s *Server) LatestHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		b := s.latest
		s.mu.Unlock()
		if b == nil {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(b)
	}
}

// WSHandler upgrades the connection and streams ticks until either side
// goes away. The latest tick, if any, is sent first.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, latest, ok := s.join()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		s.logf("observer %s connected from %s", c.id, r.RemoteAddr)

		// Reader: observers only send close frames; any read error ends
		// the session.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if latest != nil {
			if err := s.write(conn, latest); err != nil {
				s.leave(c)
				return
			}
		}
	loop:
		for {
			select {
			case <-readDone:
				break loop
			case b, ok := <-c.out:
				if !ok {
					bye, _ := json.Marshal(Message{Type: "BYE", Scenario: s.scenario})
					_ = s.write(conn, bye)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
					break loop
				}
				if err := s.write(conn, b); err != nil {
					break loop
				}
			}
		}
		s.leave(c)
		s.logf("observer %s disconnected", c.id)
	}
}

func (s *Server) write(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
