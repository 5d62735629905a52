// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/wingedpig/replayhost/internal/events"
	"github.com/wingedpig/replayhost/internal/metrics"
)

// ErrUnknownMessage is returned for message types the host does not handle.
var ErrUnknownMessage = errors.New("unknown message type")

// Host executes UI commands.
type Host interface {
	OpenWARC(ctx context.Context, path string) error
	SyncDat(ctx context.Context, key string) error
	AsyncResponse() events.AsyncResponsePayload
	WindowClosed()
	Status() interface{}
}

// ServerConfig holds configuration for the control server.
type ServerConfig struct {
	Host  string
	Port  int
	Debug bool
}

// Dependencies holds what the control handlers need.
type Dependencies struct {
	Bus            events.EventBus
	Host           Host
	Metrics        metrics.Recorder
	MetricsHandler http.Handler // nil disables /metrics
}

// Server is the control channel server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	deps   Dependencies

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	clients  int
}

// NewServer creates a control server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopRecorder()
	}
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(Recovery)
	r.Use(Logging(s.cfg.Debug))

	r.HandleFunc("/control/ws", s.socket).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.status).Methods("GET")
	api.HandleFunc("/events", s.history).Methods("GET")
	api.HandleFunc("/commands", s.command).Methods("POST")

	if s.deps.MetricsHandler != nil {
		r.Handle("/metrics", s.deps.MetricsHandler).Methods("GET")
	}
	return r
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Listen binds the configured address. Port 0 picks a free port.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()
	log.Printf("Control server listening on http://%s", ln.Addr())
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errors.New("control server not listening")
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	log.Println("Shutting down control server...")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return srv.Shutdown(shutdownCtx)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

func (s *Server) addClient(delta int) {
	s.mu.Lock()
	s.clients += delta
	n := s.clients
	s.mu.Unlock()
	s.deps.Metrics.ControlClients(n)
}

// dispatch runs a command and returns the direct reply, if any.
func (s *Server) dispatch(ctx context.Context, msg Message) (*Message, error) {
	switch msg.Type {
	case CmdOpenWARC:
		var p OpenWARCPayload
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		if p.Path == "" {
			return nil, errors.New("open-warc requires a path")
		}
		return nil, s.deps.Host.OpenWARC(ctx, p.Path)

	case CmdSyncDat:
		var p SyncDatPayload
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		if p.Key == "" {
			return nil, errors.New("sync-dat requires a key")
		}
		return nil, s.deps.Host.SyncDat(ctx, p.Key)

	case CmdAsyncCall:
		reply, err := NewMessage(events.EventAsyncResponse, s.deps.Host.AsyncResponse())
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case CmdWindowClosed:
		s.deps.Host.WindowClosed()
		return nil, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownMessage, msg.Type)
}
