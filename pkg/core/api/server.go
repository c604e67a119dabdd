/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP and websocket API server for termbridge
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/termbridge/pkg/broker"
	srHttp "github.com/carverauto/termbridge/pkg/http"
	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/logwatch"
	"github.com/carverauto/termbridge/pkg/models"
)

const defaultRequestTimeout = 10 * time.Second

// APIServer is the client-facing surface of the broker.
type APIServer struct {
	router     *mux.Router
	broker     *broker.Broker
	poller     logwatch.LogPoller
	clock      logwatch.Clock
	corsConfig models.CORSConfig
	apiKey     string
	listenAddr string
	logger     logger.Logger
	httpSrv    *http.Server

	// hubs holds the per-session stream hubs; each owns the single poll
	// loop for its session.
	hubMu sync.Mutex
	hubs  map[string]*sessionHub
}

// NewAPIServer creates a new API server instance with the given configuration
func NewAPIServer(cfg *Config, options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		router:     mux.NewRouter(),
		corsConfig: cfg.CORS,
		apiKey:     cfg.APIKey,
		listenAddr: cfg.ListenAddr,
		clock:      logwatch.RealClock(),
		logger:     logger.NewTestLogger(),
		hubs:       make(map[string]*sessionHub),
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithBroker sets the session broker.
func WithBroker(b *broker.Broker) func(*APIServer) {
	return func(server *APIServer) {
		server.broker = b
	}
}

// WithPoller sets the incremental log poller.
func WithPoller(p logwatch.LogPoller) func(*APIServer) {
	return func(server *APIServer) {
		server.poller = p
	}
}

// WithClock overrides the clock used by stream loops. Tests inject a
// fake clock here.
func WithClock(c logwatch.Clock) func(*APIServer) {
	return func(server *APIServer) {
		server.clock = c
	}
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) func(*APIServer) {
	return func(server *APIServer) {
		server.logger = log
	}
}

// setupRoutes configures the HTTP routes for the API server.
func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return srHttp.CommonMiddleware(next, s.corsConfig, s.logger)
	})

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	protected := s.router.PathPrefix("/api").Subrouter()
	protected.Use(srHttp.APIKeyMiddleware(s.apiKey, s.logger))

	protected.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	protected.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	protected.HandleFunc("/sessions/{id}", s.handleCloseSession).Methods("DELETE")
	protected.HandleFunc("/sessions/{id}/stream", s.handleSessionStream).Methods("GET")

	protected.HandleFunc("/labs/{lab}/nodes/{node}/consoles", s.handleListConsoles).Methods("GET")
	protected.HandleFunc("/labs/{lab}/nodes/{node}/console-key", s.handleGetConsoleKey).Methods("GET")
	protected.HandleFunc("/labs/{lab}/nodes/{node}/consoles/{console}/log", s.handleLogDelta).Methods("GET")
	protected.HandleFunc("/labs/{lab}/nodes/{node}/consoles/{console}/cli", s.handleCLIState).Methods("GET")
	protected.HandleFunc("/labs/{lab}/nodes/{node}/consoles/{console}/bootlog", s.handleConsoleBootlog).Methods("GET")
	protected.HandleFunc("/bootlog", s.handleBootlogSubmit).Methods("POST")
}

// Router exposes the handler for tests and embedding.
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Start implements the lifecycle.Service interface.
func (s *APIServer) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("listen_addr", s.listenAddr).Msg("API server listening")

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// Stop implements the lifecycle.Service interface.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.broker != nil {
		s.broker.Shutdown()
	}

	if s.httpSrv == nil {
		return nil
	}

	return s.httpSrv.Shutdown(ctx)
}

// encodeJSONResponse writes v as JSON.
func (s *APIServer) encodeJSONResponse(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")

	return json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func (s *APIServer) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(models.ErrorResponse{Error: message}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	if _, err := w.Write([]byte("ok")); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write health response")
	}
}
