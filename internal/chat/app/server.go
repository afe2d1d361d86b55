// Package app hosts the realtime server: the HTTP/WebSocket transport, the
// broadcast hub, the session gateway, and the composed process lifecycle.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/banuni/haxor-mk2/internal/chat/presence"
	"github.com/banuni/haxor-mk2/internal/platform/timeouts"
	"github.com/banuni/haxor-mk2/internal/storage/sqlite"
	"github.com/banuni/haxor-mk2/internal/tasks/engine"
	"github.com/banuni/haxor-mk2/internal/tasks/httpapi"
)

// Config defines the inputs for the realtime server process.
type Config struct {
	HTTPAddr          string
	DBPath            string
	MasterID          string
	HistoryLimit      int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the HTTP/WebSocket surface together with the task engine it
// broadcasts for.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
	engine          *engine.Engine
	registry        *presence.Registry
	startedAt       time.Time
}

// NewServer builds a configured server: it opens the database, recovers
// in-flight task timers, and wires the chat and task surfaces onto one mux.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if strings.TrimSpace(config.DBPath) == "" {
		return nil, errors.New("database path is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	hub := NewHub()
	registry := presence.NewRegistry()
	taskEngine := engine.New(store,
		engine.WithBroadcaster(hub),
		engine.WithMessageStore(store),
	)
	if err := taskEngine.Start(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("start task engine: %w", err)
	}

	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		store:           store,
		engine:          taskEngine,
		registry:        registry,
		startedAt:       time.Now().UTC(),
	}

	gateway := NewGateway(store, taskEngine, registry, hub, config.MasterID, config.HistoryLimit)
	wsHandler := gateway.Handler()

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /api/health", server.handleHealth)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	httpapi.NewHandler(taskEngine).Register(mux)

	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Handler exposes the composed mux for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.engine.Close()
	if err := s.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	ServerTime    string `json:"server_time"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveUsers   int    `json:"active_users"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		ServerTime:    now.Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(s.startedAt).Seconds()),
		ActiveUsers:   s.registry.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
