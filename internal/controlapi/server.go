// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package controlapi serves the loopback-only HTTP surface co-resident
// tools use to enumerate and message agents: a plain net/http.ServeMux with
// permissive CORS and no write timeout (left open for future SSE-style fan-out).
package controlapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/router"
	"github.com/teradata-labs/loom-agentd/internal/supervisor"
)

// DefaultPort is the control API's preferred bind port. On EADDRINUSE the
// server retries on successive higher ports.
const DefaultPort = 9223

// MaxPortAttempts bounds the EADDRINUSE retry loop.
const MaxPortAttempts = 20

// Supervisor is the subset of *supervisor.Supervisor the control API reads.
type Supervisor interface {
	IsStreaming(threadName string) bool
	GetHistory(threadName string, count int) ([]supervisor.HistoryEntry, error)
}

// Router is the subset of *router.Router the control API drives.
type Router interface {
	ListAgents() []router.AgentStatus
	InjectMessage(ctx context.Context, targetThread, body, senderName string) error
	TargetExists(targetThread string) bool
}

// ThreadCreator lazily creates a thread's on-disk state. Supplied as a
// function, not an interface, since the only capability needed is
// *thread.Manager.GetOrCreate with its returned *Thread discarded.
type ThreadCreator func(threadName string) error

// Config wires a Server's dependencies.
type Config struct {
	Supervisor   Supervisor
	Router       Router
	CreateThread ThreadCreator
	Logger       *zap.Logger
	CORS         CORSConfig

	// Bind is the loopback address to listen on; defaults to 127.0.0.1.
	Bind string
	// Port is the preferred bind port; defaults to DefaultPort.
	Port int

	// Listener, if set, is already bound (e.g. via Listen) and is served
	// as-is instead of Start binding its own. Lets a caller learn the
	// actual bound port before any other collaborator that needs to embed
	// it (e.g. the subprocess tool-config's base URL) is constructed.
	Listener net.Listener
}

// Server is the control API's HTTP listener.
type Server struct {
	supervisor    Supervisor
	router        Router
	createThread  ThreadCreator
	logger        *zap.Logger
	cors          CORSConfig
	bind          string
	preferredPort int

	httpServer *http.Server
	listener   net.Listener
}

// New builds a Server. It does not bind a listener unless cfg.Listener is
// already bound; call Start to serve.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bind := cfg.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = DefaultPort
	}
	cors := cfg.CORS
	if cors.AllowedOrigins == nil {
		cors = DefaultCORSConfig()
	}

	s := &Server{
		supervisor:    cfg.Supervisor,
		router:        cfg.Router,
		createThread:  cfg.CreateThread,
		logger:        logger,
		cors:          cors,
		bind:          bind,
		preferredPort: port,
		listener:      cfg.Listener,
	}
	s.httpServer = &http.Server{
		Handler:      s.cors.wrap(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // left open for future SSE-style fan-out
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Listen binds bind/preferredPort for use with the given dependencies
// before New is called, trying preferredPort then incrementing on
// EADDRINUSE up to MaxPortAttempts times. Call this first when a
// collaborator (e.g. the subprocess tool-config writer) needs to know the
// actual bound port before it's constructed; pass the result into
// Config.Listener so Start doesn't rebind.
func Listen(bind string, preferredPort int) (net.Listener, int, error) {
	if bind == "" {
		bind = "127.0.0.1"
	}
	return listenWithFallback(bind, preferredPort, MaxPortAttempts)
}

// Start serves on cfg.Listener if one was supplied, binding one otherwise,
// and serves until ctx is cancelled or Stop is called. Blocks until the
// server stops.
func (s *Server) Start(ctx context.Context) error {
	ln := s.listener
	if ln == nil {
		bound, port, err := listenWithFallback(s.bind, s.preferredPort, MaxPortAttempts)
		if err != nil {
			return fmt.Errorf("control API: %w", err)
		}
		ln = bound
		s.listener = ln
		s.logger.Info("control API listening", zap.Int("port", port))
	} else {
		s.logger.Info("control API listening", zap.Int("port", s.Port()))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API server exited: %w", err)
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("control API stopping")
	return s.httpServer.Shutdown(ctx)
}

// Port returns the port actually bound, or 0 before Start succeeds.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func listenWithFallback(bind string, preferred, maxAttempts int) (net.Listener, int, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		port := preferred + i
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, port))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port found starting at %d after %d attempts: %w", preferred, maxAttempts, lastErr)
}
