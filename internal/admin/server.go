// Package admin serves a read-only view of the daemon's published health.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pandad/internal/messaging"
)

const (
	clientQueue  = 16
	writeTimeout = time.Second
)

// Server caches the latest health events and pushes them to websocket clients.
// It implements sink.Writer so it can be fed by sink.Forward.
type Server struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	panda      *messaging.Event
	peripheral *messaging.Event
	clients    map[chan []byte]struct{}
}

// NewServer creates an empty server.
func NewServer(log *slog.Logger) *Server {
	return &Server{
		log:     log,
		clients: make(map[chan []byte]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/peripheral", s.handlePeripheral)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type update struct {
	Topic messaging.Topic `json:"topic"`
	messaging.Event
}

// WriteEvent caches ev and broadcasts it. Slow clients miss updates.
func (s *Server) WriteEvent(topic messaging.Topic, ev messaging.Event) error {
	switch topic {
	case messaging.TopicPandaStates, messaging.TopicPeripheralState:
	default:
		return nil
	}
	data, err := json.Marshal(update{Topic: topic, Event: ev})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if topic == messaging.TopicPandaStates {
		s.panda = &ev
	} else {
		s.peripheral = &ev
	}
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ev := s.panda
	s.mu.RUnlock()
	writeEvent(w, ev)
}

func (s *Server) handlePeripheral(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ev := s.peripheral
	s.mu.RUnlock()
	writeEvent(w, ev)
}

func writeEvent(w http.ResponseWriter, ev *messaging.Event) {
	if ev == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ev)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan []byte, clientQueue)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	// reader detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case data := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
