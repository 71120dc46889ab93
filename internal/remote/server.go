package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Server exposes a Store over HTTP with a websocket change feed per
// user. It is the replica backend for `oneup serve` and for tests.
//
// Routes:
//
//	GET/PUT /v1/users/{uid}/progress
//	GET     /v1/users/{uid}/progress/watch   (websocket)
//	GET/PUT /v1/users/{uid}/settings
//	PUT     /v1/users/{uid}/leaderboard
//	GET     /v1/leaderboard
//	GET     /health
type Server struct {
	addr     string
	backend  *Memory
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// ServerConfig holds replica server configuration.
type ServerConfig struct {
	// Port to listen on (0 picks a free port).
	Port int

	// Logger for server activity (default: the process default logger).
	Logger *log.Logger
}

// NewServer creates a replica server over an in-memory backend.
func NewServer(config *ServerConfig) *Server {
	if config == nil {
		config = &ServerConfig{}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		backend: NewMemory(),
		clients: make(map[*websocket.Conn]bool),
		ctx:     ctx,
		cancel:  cancel,
		logger:  config.Logger,
	}
}

// Backend returns the server's in-memory store.
func (s *Server) Backend() *Memory {
	return s.backend
}

// Start begins listening. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users/", s.handleUser)
	mux.HandleFunc("/v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Replica server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and all live feeds.
func (s *Server) Stop() error {
	s.logger.Println("Stopping replica server")
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the server's base URL. A wildcard listen address maps
// to loopback so the result is always dialable.
func (s *Server) URL() string {
	addr := s.Addr()
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "::" || host == "0.0.0.0" {
			addr = net.JoinHostPort("127.0.0.1", port)
		}
	}
	return "http://" + addr
}

// handleUser routes /v1/users/{uid}/{record} requests.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	uid := parts[0]
	record := strings.Join(parts[1:], "/")

	switch record {
	case "progress":
		s.handleProgress(w, r, uid)
	case "progress/watch":
		s.handleWatch(w, r, uid)
	case "settings":
		s.handleSettings(w, r, uid)
	case "leaderboard":
		s.handleUserLeaderboard(w, r, uid)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, uid string) {
	switch r.Method {
	case http.MethodGet:
		env, err := s.backend.LoadProgress(r.Context(), uid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if env == nil {
			http.Error(w, "no progress", http.StatusNotFound)
			return
		}
		writeJSON(w, env)

	case http.MethodPut:
		var env Envelope
		if err := decodeBody(r, &env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if env.State == nil {
			http.Error(w, "missing state", http.StatusBadRequest)
			return
		}
		writtenAt, err := s.backend.SaveProgress(r.Context(), uid, &env)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"writtenAt": writtenAt})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, uid string) {
	switch r.Method {
	case http.MethodGet:
		blob, err := s.backend.LoadSettings(r.Context(), uid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if blob == nil {
			http.Error(w, "no settings", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(blob)

	case http.MethodPut:
		// Settings are opaque: stored and served back byte for byte.
		blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !json.Valid(blob) {
			http.Error(w, "settings must be valid JSON", http.StatusBadRequest)
			return
		}
		if err := s.backend.SaveSettings(r.Context(), uid, blob); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUserLeaderboard(w http.ResponseWriter, r *http.Request, uid string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var entry LeaderboardEntry
	if err := decodeBody(r, &entry); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.SaveLeaderboard(r.Context(), uid, &entry); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.backend.Leaderboard())
}

// handleWatch upgrades to a websocket and forwards every accepted
// progress write for the user until the client goes away.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request, uid string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
	s.logger.Printf("Watcher connected for %s", uid)

	envelopes := make(chan *Envelope, 16)
	unsubscribe, err := s.backend.Subscribe(r.Context(), uid, func(env *Envelope) {
		select {
		case envelopes <- env:
		default:
			s.logger.Printf("Watcher for %s is slow, dropping update", uid)
		}
	})
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	// Read loop only detects disconnects; watchers never send.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(s.ctx); err != nil {
				return
			}
		}
	}()

	defer func() {
		unsubscribe()
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Watcher disconnected for %s", uid)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-readDone:
			return
		case env := <-envelopes:
			data, err := json.Marshal(env)
			if err != nil {
				s.logger.Printf("Failed to marshal envelope: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Printf("Failed to send to watcher: %v", err)
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.Lock()
	watchers := len(s.clients)
	s.clientsMu.Unlock()

	writeJSON(w, map[string]any{
		"status":   "ok",
		"watchers": watchers,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
