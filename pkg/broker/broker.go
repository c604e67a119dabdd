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

// Package broker owns the mapping from client-visible session ids to
// remote (lab, node, console) triples and their transport handles.
//
// The session table is an explicitly owned structure passed by reference
// to its consumers; there is no process-wide singleton, so tests and
// multiple broker instances stay isolated.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/logwatch"
	"github.com/carverauto/termbridge/pkg/models"
	"github.com/google/uuid"
)

// supportedTransports is the broker's static capability map. It reflects
// what this broker can relay, not what any device advertises.
var supportedTransports = map[models.TransportType]bool{
	models.TransportConsole: true,
	models.TransportSerial:  true,
}

// CreateRequest is a client request for a new console session.
type CreateRequest struct {
	LabID  string               `json:"lab_id"`
	NodeID string               `json:"node_id"`
	Type   models.TransportType `json:"type,omitempty"`
}

// LiveSession is a registered session plus its cancellation scope. Stream
// loops derive their contexts from Context so CloseSession tears them
// down without dangling goroutines.
type LiveSession struct {
	models.Session

	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the session's lifetime context.
func (s *LiveSession) Context() context.Context {
	return s.ctx
}

// Broker is the stateful console session broker.
type Broker struct {
	engine     labengine.Client
	poller     logwatch.LogPoller
	logger     logger.Logger
	streamBase string

	mu       sync.RWMutex
	sessions map[string]*LiveSession
}

// Config holds broker settings.
type Config struct {
	// StreamBaseURL is the public base URL clients use to reach this
	// broker, e.g. "ws://termbridge:8090". Stream endpoints are built
	// relative to it.
	StreamBaseURL string `json:"stream_base_url"`
}

// New creates a session broker backed by the given engine client.
func New(engine labengine.Client, poller logwatch.LogPoller, cfg *Config, log logger.Logger) *Broker {
	base := ""
	if cfg != nil {
		base = cfg.StreamBaseURL
	}

	return &Broker{
		engine:     engine,
		poller:     poller,
		logger:     log,
		streamBase: base,
		sessions:   make(map[string]*LiveSession),
	}
}

// CreateSession validates the node upstream, obtains a console key, and
// registers the session. Creation is atomic: any upstream failure
// registers nothing.
//
// At most one session exists per (lab, node, console) binding; creating
// against a triple with a live session returns that session. This keeps
// the incremental transcript cache single-consumer, and it keeps
// CloseSession's cache clear from replaying history into a sibling.
func (b *Broker) CreateSession(ctx context.Context, req *CreateRequest) (*models.Session, error) {
	if req.LabID == "" || req.NodeID == "" {
		return nil, ErrInvalidRequest
	}

	transport := req.Type
	if transport == "" {
		transport = models.TransportConsole
	}

	if !supportedTransports[transport] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, transport)
	}

	if _, err := b.engine.GetNode(ctx, req.LabID, req.NodeID); err != nil {
		return nil, err
	}

	consoleKey, err := b.engine.GetConsoleKey(ctx, req.LabID, req.NodeID)
	if err != nil {
		return nil, err
	}

	consoleID, err := b.pickConsole(ctx, req.LabID, req.NodeID, transport)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	for _, existing := range b.sessions {
		if existing.LabID == req.LabID && existing.NodeID == req.NodeID && existing.ConsoleID == consoleID {
			out := existing.Session
			b.mu.Unlock()

			b.logger.Info().
				Str("session_id", out.ID).
				Str("lab_id", req.LabID).
				Str("node_id", req.NodeID).
				Str("console_id", consoleID).
				Msg("Session reused for live console binding")

			return &out, nil
		}
	}

	sessionID := uuid.New().String()
	sessionCtx, cancel := context.WithCancel(context.Background())

	live := &LiveSession{
		Session: models.Session{
			ID:             sessionID,
			LabID:          req.LabID,
			NodeID:         req.NodeID,
			ConsoleID:      consoleID,
			ConsoleKey:     consoleKey,
			Type:           transport,
			State:          models.SessionActive,
			StreamEndpoint: b.streamBase + "/api/sessions/" + sessionID + "/stream",
			CreatedAt:      time.Now().UTC(),
		},
		ctx:    sessionCtx,
		cancel: cancel,
	}

	b.sessions[sessionID] = live
	b.mu.Unlock()

	b.logger.Info().
		Str("session_id", sessionID).
		Str("lab_id", req.LabID).
		Str("node_id", req.NodeID).
		Str("console_id", consoleID).
		Str("type", string(transport)).
		Msg("Session created")

	out := live.Session

	return &out, nil
}

// pickConsole selects the engine console matching the requested
// transport, falling back to the first console the engine lists.
func (b *Broker) pickConsole(ctx context.Context, labID, nodeID string, transport models.TransportType) (string, error) {
	consoles, err := b.engine.ListConsoles(ctx, labID, nodeID)
	if err != nil {
		return "", err
	}

	if len(consoles) == 0 {
		return "", fmt.Errorf("%w: node %s/%s exposes no consoles", labengine.ErrNotFound, labID, nodeID)
	}

	for _, c := range consoles {
		if c.Type == string(transport) {
			return c.ID, nil
		}
	}

	return consoles[0].ID, nil
}

// ListSessions returns all registered sessions with console keys
// redacted. Side-effect-free.
func (b *Broker) ListSessions() []*models.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*models.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s.Session.Redacted())
	}

	return out
}

// Get returns the live session for an id.
func (b *Broker) Get(sessionID string) (*LiveSession, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.sessions[sessionID]

	return s, ok
}

// CloseSession removes a session, cancels its stream loops, and clears
// the transcript cache for its triple. Idempotent: closing an unknown id
// reports already-closed success.
func (b *Broker) CloseSession(sessionID string) bool {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Info().Str("session_id", sessionID).Msg("Close of unknown session; already closed")
		return true
	}

	s.cancel()
	s.State = models.SessionClosed

	if b.poller != nil {
		b.poller.ClearCache(s.LabID, s.NodeID, s.ConsoleID)
	}

	b.logger.Info().
		Str("session_id", sessionID).
		Str("lab_id", s.LabID).
		Str("node_id", s.NodeID).
		Msg("Session closed")

	return true
}

// ListConsoles is a pass-through query annotated with the broker's
// transport capability map.
func (b *Broker) ListConsoles(ctx context.Context, labID, nodeID string) (*models.ConsoleList, error) {
	consoles, err := b.engine.ListConsoles(ctx, labID, nodeID)
	if err != nil {
		return nil, err
	}

	return &models.ConsoleList{
		LabID:               labID,
		NodeID:              nodeID,
		Consoles:            consoles,
		SupportedTransports: SupportedTransports(),
	}, nil
}

// GetConsoleKey is a pass-through query to the engine.
func (b *Broker) GetConsoleKey(ctx context.Context, labID, nodeID string) (string, error) {
	return b.engine.GetConsoleKey(ctx, labID, nodeID)
}

// ConsoleEndpoint exposes the engine-derived websocket endpoint for a
// console key, used by stream handlers to relay keystrokes upstream.
func (b *Broker) ConsoleEndpoint(consoleKey string) string {
	return b.engine.ConsoleEndpoint(consoleKey)
}

// Shutdown closes every registered session. Sessions are not persisted;
// a restarted broker starts empty.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*LiveSession)
	b.mu.Unlock()

	for id, s := range sessions {
		s.cancel()

		if b.poller != nil {
			b.poller.ClearCache(s.LabID, s.NodeID, s.ConsoleID)
		}

		b.logger.Debug().Str("session_id", id).Msg("Session closed on shutdown")
	}
}

// SupportedTransports returns the broker's static capability map as a
// stable list.
func SupportedTransports() []models.TransportType {
	return []models.TransportType{models.TransportConsole, models.TransportSerial}
}
