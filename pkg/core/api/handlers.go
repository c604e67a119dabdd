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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carverauto/termbridge/pkg/bootlog"
	"github.com/carverauto/termbridge/pkg/broker"
	"github.com/carverauto/termbridge/pkg/cliparse"
	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/logwatch"
)

// statusForError maps the error taxonomy onto HTTP statuses. Upstream
// validation failures are the client's problem; engine unavailability is
// a gateway condition the client may retry.
func statusForError(err error) int {
	switch {
	case errors.Is(err, broker.ErrInvalidRequest),
		errors.Is(err, broker.ErrUnsupportedTransport),
		errors.Is(err, logwatch.ErrInvalidTriple):
		return http.StatusBadRequest
	case errors.Is(err, labengine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, labengine.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req broker.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	session, err := s.broker.CreateSession(ctx, &req)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("lab_id", req.LabID).
			Str("node_id", req.NodeID).
			Msg("Session creation failed")
		s.writeError(w, err.Error(), statusForError(err))

		return
	}

	w.WriteHeader(http.StatusCreated)

	if err := s.encodeJSONResponse(w, session); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode session response")
	}
}

func (s *APIServer) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if err := s.encodeJSONResponse(w, s.broker.ListSessions()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode session list")
	}
}

func (s *APIServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	closed := s.broker.CloseSession(sessionID)

	if err := s.encodeJSONResponse(w, CloseSessionResponse{SessionID: sessionID, Closed: closed}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode close response")
	}
}

func (s *APIServer) handleListConsoles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	list, err := s.broker.ListConsoles(ctx, vars["lab"], vars["node"])
	if err != nil {
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.encodeJSONResponse(w, list); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode console list")
	}
}

func (s *APIServer) handleGetConsoleKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	key, err := s.broker.GetConsoleKey(ctx, vars["lab"], vars["node"])
	if err != nil {
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	resp := ConsoleKeyResponse{LabID: vars["lab"], NodeID: vars["node"], ConsoleKey: key}

	if err := s.encodeJSONResponse(w, resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode console key")
	}
}

func (s *APIServer) handleLogDelta(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	delta, err := s.poller.Poll(ctx, vars["lab"], vars["node"], vars["console"])
	if err != nil {
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.encodeJSONResponse(w, delta); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode log delta")
	}
}

func (s *APIServer) handleCLIState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	// Mode and hostname depend on history, so the parser gets the full
	// cumulative transcript rather than the latest delta.
	lines, err := s.poller.Transcript(ctx, vars["lab"], vars["node"], vars["console"])
	if err != nil {
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.encodeJSONResponse(w, cliparse.Parse(lines)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode CLI state")
	}
}

func (s *APIServer) handleConsoleBootlog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	lines, err := s.poller.Transcript(ctx, vars["lab"], vars["node"], vars["console"])
	if err != nil {
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.encodeJSONResponse(w, bootlog.Analyze(lines)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode boot report")
	}
}

func (s *APIServer) handleBootlogSubmit(w http.ResponseWriter, r *http.Request) {
	var req BootlogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.encodeJSONResponse(w, bootlog.Analyze(req.Log)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode boot report")
	}
}
