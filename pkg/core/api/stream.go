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
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carverauto/termbridge/pkg/broker"
	"github.com/carverauto/termbridge/pkg/cliparse"
	srHttp "github.com/carverauto/termbridge/pkg/http"
	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/models"
)

const (
	streamPingInterval = 30 * time.Second
	clientReadTimeout  = 60 * time.Second
	upstreamDialWait   = 5 * time.Second
	controlWriteWait   = 10 * time.Second

	// viewerBuffer bounds each viewer's send queue. A viewer that cannot
	// drain it is dropped; reattaching replays the cumulative transcript.
	viewerBuffer = 64
)

// StreamMessage is the envelope sent over the session websocket.
//
// Types: "data" (new transcript lines plus derived CLI state), "reset"
// (device restarted; discard prior view, Lines carries the full fresh
// transcript), "error" (transient upstream failure, the loop keeps
// polling), "info", and "ping".
type StreamMessage struct {
	Type      string           `json:"type"`
	Lines     []string         `json:"lines,omitempty"`
	CLI       *cliparse.Result `json:"cli,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// commandTracker accumulates relayed keystrokes so the poll loop can
// tell which command is currently in flight.
type commandTracker struct {
	mu      sync.Mutex
	buf     strings.Builder
	lastCmd string
}

func (t *commandTracker) Write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		switch b {
		case '\r', '\n':
			if line := strings.TrimSpace(t.buf.String()); line != "" {
				t.lastCmd = line
			}

			t.buf.Reset()
		default:
			t.buf.WriteByte(b)
		}
	}
}

func (t *commandTracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastCmd
}

// sessionHub owns the one transcript poll loop for a session and fans
// deltas out to every attached viewer. Concurrent viewers polling the
// incremental cache independently would race for deltas and each see
// only a subset, so polling is serialized here per session.
type sessionHub struct {
	server  *APIServer
	live    *broker.LiveSession
	tracker *commandTracker
	cancel  context.CancelFunc

	// ready is closed once the upstream dial and transcript seed are done
	// and viewers may subscribe.
	ready chan struct{}

	upstreamMu sync.Mutex
	upstream   *websocket.Conn

	mu         sync.Mutex
	readOnly   bool
	cumulative []string
	viewers    map[chan StreamMessage]struct{}
	stopped    bool
}

// handleSessionStream upgrades the connection and attaches it to the
// session's hub: transcript deltas flow down to the browser, keystrokes
// flow up to the device console.
func (s *APIServer) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	live, ok := s.broker.Get(sessionID)
	if !ok {
		s.writeError(w, "session not found", http.StatusNotFound)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return srHttp.OriginAllowed(r.Header.Get("Origin"), s.corsConfig.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Stream connection close")
		}
	}()

	s.logger.Info().
		Str("session_id", sessionID).
		Str("remote_addr", r.RemoteAddr).
		Msg("Stream attached")

	hub, ch, snapshot, readOnly := s.attachHub(live)
	if hub == nil {
		// Session closed while attaching.
		return
	}

	defer hub.unsubscribe(ch)

	// Closing the session cancels this context; so does a client
	// disconnect via the reader goroutine.
	ctx, cancel := context.WithCancel(live.Context())
	defer cancel()

	if readOnly {
		s.send(conn, StreamMessage{Type: "info", Error: "console transport unavailable; session is read-only"})
	}

	// Seed the new viewer with the transcript so far; everything after
	// this is deltas from the hub.
	if len(snapshot) > 0 {
		if !s.send(conn, StreamMessage{Type: "data", Lines: snapshot, CLI: cliparse.Parse(snapshot)}) {
			return
		}
	}

	// Browsers answer protocol pings automatically; each pong pushes the
	// read deadline forward so a passive viewer is never timed out.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(clientReadTimeout))
	})

	go s.readClientMessages(ctx, conn, hub, cancel, sessionID)

	s.writeViewer(ctx, conn, ch, sessionID)
}

// attachHub subscribes the caller to the session's hub, starting one if
// none is running. Returns a nil hub when the session is already closed.
func (s *APIServer) attachHub(live *broker.LiveSession) (*sessionHub, chan StreamMessage, []string, bool) {
	for {
		select {
		case <-live.Context().Done():
			return nil, nil, nil, false
		default:
		}

		s.hubMu.Lock()
		hub, ok := s.hubs[live.ID]
		if !ok {
			hub = s.startHub(live)
			s.hubs[live.ID] = hub
		}
		s.hubMu.Unlock()

		if ch, snapshot, readOnly, ok := hub.subscribe(); ok {
			return hub, ch, snapshot, readOnly
		}

		// The hub stopped between lookup and subscribe; drop it and retry.
		s.hubMu.Lock()
		if s.hubs[live.ID] == hub {
			delete(s.hubs, live.ID)
		}
		s.hubMu.Unlock()
	}
}

// startHub builds a hub for the session and launches its poll loop. The
// hub's context derives from the session's, so CloseSession tears the
// loop down.
func (s *APIServer) startHub(live *broker.LiveSession) *sessionHub {
	ctx, cancel := context.WithCancel(live.Context())

	h := &sessionHub{
		server:  s,
		live:    live,
		tracker: &commandTracker{},
		cancel:  cancel,
		ready:   make(chan struct{}),
		viewers: make(map[chan StreamMessage]struct{}),
	}

	go h.run(ctx)

	return h
}

func (h *sessionHub) run(ctx context.Context) {
	s := h.server

	// Best-effort upstream console dial for keystroke relay. A failed
	// dial degrades the session to read-only; polling still works.
	upstream := s.dialUpstream(ctx, h.live.ConsoleKey, h.live.ID)

	h.upstreamMu.Lock()
	h.upstream = upstream
	h.upstreamMu.Unlock()

	h.mu.Lock()
	h.readOnly = upstream == nil
	h.mu.Unlock()

	h.seed(ctx)
	close(h.ready)

	h.loop(ctx)
	h.teardown()
}

// seed initializes the cumulative view from the full transcript so a
// viewer attaching to an established session sees history, not silence.
func (h *sessionHub) seed(ctx context.Context) {
	lines, err := h.server.poller.Transcript(ctx, h.live.LabID, h.live.NodeID, h.live.ConsoleID)
	if err != nil {
		h.server.logger.Warn().
			Err(err).
			Str("session_id", h.live.ID).
			Msg("Initial transcript fetch failed; starting from deltas")

		return
	}

	h.mu.Lock()
	h.cumulative = lines
	h.mu.Unlock()
}

// subscribe registers a viewer and returns its message channel, a
// snapshot of the transcript so far, and the hub's read-only flag. The
// final result reports whether the hub is still accepting viewers.
func (h *sessionHub) subscribe() (chan StreamMessage, []string, bool, bool) {
	<-h.ready

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, nil, false, false
	}

	ch := make(chan StreamMessage, viewerBuffer)
	h.viewers[ch] = struct{}{}
	snapshot := append([]string(nil), h.cumulative...)

	return ch, snapshot, h.readOnly, true
}

func (h *sessionHub) unsubscribe(ch chan StreamMessage) {
	h.mu.Lock()
	if _, ok := h.viewers[ch]; ok {
		delete(h.viewers, ch)
		close(ch)
	}

	empty := len(h.viewers) == 0 && !h.stopped
	h.mu.Unlock()

	// The last viewer leaving stops the poll loop; the next attach starts
	// a fresh hub reseeded from the engine.
	if empty {
		h.cancel()
	}
}

func (h *sessionHub) broadcast(msg StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.viewers {
		select {
		case ch <- msg:
		default:
			// Viewer is not draining its queue; drop it rather than stall
			// every other viewer.
			delete(h.viewers, ch)
			close(ch)
		}
	}
}

// loop is the session's only poll loop. One bad poll never kills the
// session: upstream failures surface as transient error messages so the
// UI can show "reconnecting".
func (h *sessionHub) loop(ctx context.Context) {
	s := h.server

	interval := s.poller.RecommendedPollInterval("")
	ticker := s.clock.Ticker(interval)

	// The ticker is replaced on cadence changes; stop whichever one is
	// current when the loop exits.
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("session_id", h.live.ID).Msg("Stream loop canceled")
			return

		case <-ticker.Chan():
			delta, err := s.poller.Poll(ctx, h.live.LabID, h.live.NodeID, h.live.ConsoleID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				if errors.Is(err, labengine.ErrUpstreamUnavailable) {
					h.broadcast(StreamMessage{Type: "error", Error: "lab engine unavailable; reconnecting"})
					continue
				}

				// Contract errors terminate the stream; there is nothing
				// the next tick can fix.
				s.logger.Error().Err(err).Str("session_id", h.live.ID).Msg("Stream poll failed")
				h.broadcast(StreamMessage{Type: "error", Error: err.Error()})

				return
			}

			if msg, ok := h.applyDelta(delta); ok {
				h.broadcast(msg)
			}

			// Re-arm the ticker when the in-flight command changes the
			// recommended cadence.
			if next := s.poller.RecommendedPollInterval(h.tracker.Last()); next != interval {
				interval = next

				ticker.Stop()
				ticker = s.clock.Ticker(interval)
			}
		}
	}
}

// applyDelta folds a poll result into the cumulative view and builds the
// outbound message, if the delta carries anything.
func (h *sessionHub) applyDelta(delta *models.LogDelta) (StreamMessage, bool) {
	h.mu.Lock()

	if delta.Reset {
		h.cumulative = append([]string(nil), delta.NewLines...)
	} else {
		h.cumulative = append(h.cumulative, delta.NewLines...)
	}

	snapshot := append([]string(nil), h.cumulative...)
	h.mu.Unlock()

	if !delta.Reset && len(delta.NewLines) == 0 {
		return StreamMessage{}, false
	}

	msgType := "data"
	lines := delta.NewLines

	if delta.Reset {
		msgType = "reset"
		lines = snapshot
	}

	return StreamMessage{Type: msgType, Lines: lines, CLI: cliparse.Parse(snapshot)}, true
}

// teardown runs once when the loop exits: deregister, drop every viewer,
// and close the upstream console connection.
func (h *sessionHub) teardown() {
	s := h.server

	s.hubMu.Lock()
	if s.hubs[h.live.ID] == h {
		delete(s.hubs, h.live.ID)
	}
	s.hubMu.Unlock()

	h.mu.Lock()
	h.stopped = true

	for ch := range h.viewers {
		delete(h.viewers, ch)
		close(ch)
	}
	h.mu.Unlock()

	h.upstreamMu.Lock()
	if h.upstream != nil {
		_ = h.upstream.Close()
		h.upstream = nil
	}
	h.upstreamMu.Unlock()

	h.cancel()
}

// relay forwards one keystroke payload to the device console and records
// it for cadence tracking.
func (h *sessionHub) relay(payload []byte) {
	h.tracker.Write(payload)

	h.upstreamMu.Lock()
	defer h.upstreamMu.Unlock()

	if h.upstream == nil {
		return
	}

	if err := h.upstream.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.server.logger.Warn().Err(err).Str("session_id", h.live.ID).Msg("Keystroke relay failed")
	}
}

// dialUpstream connects to the engine's console websocket for a key.
func (s *APIServer) dialUpstream(ctx context.Context, consoleKey, sessionID string) *websocket.Conn {
	endpoint := s.broker.ConsoleEndpoint(consoleKey)

	dialCtx, cancel := context.WithTimeout(ctx, upstreamDialWait)
	defer cancel()

	upstream, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("Upstream console dial failed; continuing read-only")

		return nil
	}

	return upstream
}

// writeViewer forwards hub messages to one websocket client. It is the
// connection's only writer; the ping tick sends a protocol-level ping
// ahead of the keepalive message so browsers answer with a pong and the
// read deadline keeps moving for passive viewers.
func (s *APIServer) writeViewer(ctx context.Context, conn *websocket.Conn, ch chan StreamMessage, sessionID string) {
	ping := s.clock.Ticker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			if !s.send(conn, msg) {
				return
			}

		case <-ping.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Keepalive ping failed; client likely gone")
				return
			}

			if !s.send(conn, StreamMessage{Type: "ping"}) {
				return
			}
		}
	}
}

// send writes one message to the client, reporting whether the
// connection is still usable.
func (s *APIServer) send(conn *websocket.Conn, msg StreamMessage) bool {
	msg.Timestamp = time.Now().UTC()

	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("Stream write failed; client likely gone")
		return false
	}

	return true
}

// readClientMessages relays keystrokes to the hub and cancels the viewer
// context when the client disconnects.
func (s *APIServer) readClientMessages(ctx context.Context, conn *websocket.Conn, hub *sessionHub, cancel context.CancelFunc, sessionID string) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(clientReadTimeout)); err != nil {
			s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Failed to set read deadline")
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Client connection lost")
			}

			return
		}

		if messageType == websocket.CloseMessage {
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		hub.relay(payload)
	}
}
