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

package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/models"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) GetNode(ctx context.Context, labID, nodeID string) (*labengine.Node, error) {
	args := m.Called(ctx, labID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*labengine.Node), args.Error(1)
}

func (m *mockEngine) ListConsoles(ctx context.Context, labID, nodeID string) ([]models.ConsoleInfo, error) {
	args := m.Called(ctx, labID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.ConsoleInfo), args.Error(1)
}

func (m *mockEngine) GetConsoleKey(ctx context.Context, labID, nodeID string) (string, error) {
	args := m.Called(ctx, labID, nodeID)

	return args.String(0), args.Error(1)
}

func (m *mockEngine) GetTranscript(ctx context.Context, labID, nodeID, consoleID string) ([]string, error) {
	args := m.Called(ctx, labID, nodeID, consoleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *mockEngine) ConsoleEndpoint(consoleKey string) string {
	args := m.Called(consoleKey)

	return args.String(0)
}

// fakePoller records cache clears; the broker never polls itself.
type fakePoller struct {
	mu      sync.Mutex
	cleared [][3]string
}

func (f *fakePoller) Poll(_ context.Context, _, _, _ string) (*models.LogDelta, error) {
	return &models.LogDelta{}, nil
}

func (f *fakePoller) Transcript(_ context.Context, _, _, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakePoller) ClearCache(labID, nodeID, consoleID string) {
	f.mu.Lock()
	f.cleared = append(f.cleared, [3]string{labID, nodeID, consoleID})
	f.mu.Unlock()
}

func (f *fakePoller) SetPollInterval(time.Duration) {}

func (f *fakePoller) PollInterval() time.Duration { return 3 * time.Second }

func (f *fakePoller) RecommendedPollInterval(string) time.Duration { return 3 * time.Second }

func (f *fakePoller) clearedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.cleared)
}

func newTestBroker(engine labengine.Client, poller *fakePoller) *Broker {
	return New(engine, poller, &Config{StreamBaseURL: "ws://broker:8090"}, logger.NewTestLogger())
}

func healthyEngine() *mockEngine {
	engine := &mockEngine{}
	engine.On("GetNode", mock.Anything, "lab1", "r1").
		Return(&labengine.Node{ID: "r1", State: "READY"}, nil)
	engine.On("GetConsoleKey", mock.Anything, "lab1", "r1").
		Return("key-abc", nil)
	engine.On("ListConsoles", mock.Anything, "lab1", "r1").
		Return([]models.ConsoleInfo{
			{ID: "console0", Type: "console"},
			{ID: "serial0", Type: "serial"},
		}, nil)
	engine.On("GetNode", mock.Anything, "lab1", "r2").
		Return(&labengine.Node{ID: "r2", State: "READY"}, nil)
	engine.On("GetConsoleKey", mock.Anything, "lab1", "r2").
		Return("key-def", nil)
	engine.On("ListConsoles", mock.Anything, "lab1", "r2").
		Return([]models.ConsoleInfo{{ID: "console0", Type: "console"}}, nil)

	return engine
}

func TestCreateSession(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})

	session, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "lab1", session.LabID)
	assert.Equal(t, "r1", session.NodeID)
	assert.Equal(t, "console0", session.ConsoleID)
	assert.Equal(t, "key-abc", session.ConsoleKey)
	assert.Equal(t, models.TransportConsole, session.Type)
	assert.Equal(t, models.SessionActive, session.State)
	assert.Equal(t, "ws://broker:8090/api/sessions/"+session.ID+"/stream", session.StreamEndpoint)
	assert.WithinDuration(t, time.Now().UTC(), session.CreatedAt, 5*time.Second)
}

func TestCreateSessionSerialTransport(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})

	session, err := b.CreateSession(context.Background(),
		&CreateRequest{LabID: "lab1", NodeID: "r1", Type: models.TransportSerial})
	require.NoError(t, err)

	assert.Equal(t, "serial0", session.ConsoleID)
	assert.Equal(t, models.TransportSerial, session.Type)
}

func TestCreateSessionUniqueIDs(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})
	ctx := context.Background()

	s1, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	s2, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r2"})
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Len(t, b.ListSessions(), 2)
}

func TestCreateSessionReusesLiveTriple(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})
	ctx := context.Background()

	s1, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	// A second create against the same console binding returns the live
	// session instead of registering a competitor for the same cache
	// entry.
	s2, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, s1.ConsoleKey, s2.ConsoleKey)
	assert.Len(t, b.ListSessions(), 1)

	// Distinct transports bind distinct consoles, so they coexist.
	serial, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1", Type: models.TransportSerial})
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, serial.ID)
	assert.Len(t, b.ListSessions(), 2)
}

func TestCreateSessionAfterCloseStartsFresh(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})
	ctx := context.Background()

	s1, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	require.True(t, b.CloseSession(s1.ID))

	s2, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Len(t, b.ListSessions(), 1)
}

func TestCreateSessionValidation(t *testing.T) {
	b := newTestBroker(&mockEngine{}, &fakePoller{})
	ctx := context.Background()

	_, err := b.CreateSession(ctx, &CreateRequest{NodeID: "r1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.CreateSession(ctx, &CreateRequest{LabID: "lab1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1", Type: "telepathy"})
	assert.ErrorIs(t, err, ErrUnsupportedTransport)
}

func TestCreateSessionUnknownNode(t *testing.T) {
	engine := &mockEngine{}
	engine.On("GetNode", mock.Anything, "lab1", "ghost").
		Return(nil, labengine.ErrNotFound)

	b := newTestBroker(engine, &fakePoller{})

	_, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "ghost"})
	assert.ErrorIs(t, err, labengine.ErrNotFound)
	assert.Empty(t, b.ListSessions())
}

func TestCreateSessionAtomicOnKeyFailure(t *testing.T) {
	engine := &mockEngine{}
	engine.On("GetNode", mock.Anything, "lab1", "r1").
		Return(&labengine.Node{ID: "r1"}, nil)
	engine.On("GetConsoleKey", mock.Anything, "lab1", "r1").
		Return("", labengine.ErrUpstreamUnavailable)

	b := newTestBroker(engine, &fakePoller{})

	_, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.ErrorIs(t, err, labengine.ErrUpstreamUnavailable)

	// Nothing half-created survives a failed exchange.
	assert.Empty(t, b.ListSessions())
}

func TestCreateSessionNoConsoles(t *testing.T) {
	engine := &mockEngine{}
	engine.On("GetNode", mock.Anything, "lab1", "r1").
		Return(&labengine.Node{ID: "r1"}, nil)
	engine.On("GetConsoleKey", mock.Anything, "lab1", "r1").
		Return("key-abc", nil)
	engine.On("ListConsoles", mock.Anything, "lab1", "r1").
		Return([]models.ConsoleInfo{}, nil)

	b := newTestBroker(engine, &fakePoller{})

	_, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "r1"})
	assert.ErrorIs(t, err, labengine.ErrNotFound)
}

func TestCreateSessionFallsBackToFirstConsole(t *testing.T) {
	engine := &mockEngine{}
	engine.On("GetNode", mock.Anything, "lab1", "r1").
		Return(&labengine.Node{ID: "r1"}, nil)
	engine.On("GetConsoleKey", mock.Anything, "lab1", "r1").
		Return("key-abc", nil)
	engine.On("ListConsoles", mock.Anything, "lab1", "r1").
		Return([]models.ConsoleInfo{{ID: "vnc0", Type: "vnc"}}, nil)

	b := newTestBroker(engine, &fakePoller{})

	session, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "vnc0", session.ConsoleID)
}

func TestListSessionsRedactsConsoleKey(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})

	created, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ConsoleKey)

	sessions := b.ListSessions()
	require.Len(t, sessions, 1)
	assert.Empty(t, sessions[0].ConsoleKey)
	assert.Equal(t, created.ID, sessions[0].ID)

	// Redaction is a copy; the live session keeps its key for the stream
	// handler.
	live, ok := b.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "key-abc", live.ConsoleKey)
}

func TestCloseSession(t *testing.T) {
	poller := &fakePoller{}
	b := newTestBroker(healthyEngine(), poller)

	session, err := b.CreateSession(context.Background(), &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	live, ok := b.Get(session.ID)
	require.True(t, ok)

	assert.True(t, b.CloseSession(session.ID))

	_, ok = b.Get(session.ID)
	assert.False(t, ok)

	// The session context is canceled so stream loops exit.
	select {
	case <-live.Context().Done():
	default:
		t.Fatal("session context still live after close")
	}

	assert.Equal(t, 1, poller.clearedCount())

	// Closing again is idempotent: still success, no double clear.
	assert.True(t, b.CloseSession(session.ID))
	assert.Equal(t, 1, poller.clearedCount())
}

func TestCloseUnknownSession(t *testing.T) {
	b := newTestBroker(&mockEngine{}, &fakePoller{})

	assert.True(t, b.CloseSession("never-existed"))
}

func TestShutdownClosesAllSessions(t *testing.T) {
	poller := &fakePoller{}
	b := newTestBroker(healthyEngine(), poller)
	ctx := context.Background()

	s1, err := b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r1"})
	require.NoError(t, err)

	_, err = b.CreateSession(ctx, &CreateRequest{LabID: "lab1", NodeID: "r2"})
	require.NoError(t, err)

	live, ok := b.Get(s1.ID)
	require.True(t, ok)

	b.Shutdown()

	assert.Empty(t, b.ListSessions())
	assert.Equal(t, 2, poller.clearedCount())

	select {
	case <-live.Context().Done():
	default:
		t.Fatal("session context still live after shutdown")
	}
}

func TestListConsolesAnnotated(t *testing.T) {
	b := newTestBroker(healthyEngine(), &fakePoller{})

	list, err := b.ListConsoles(context.Background(), "lab1", "r1")
	require.NoError(t, err)

	assert.Equal(t, "lab1", list.LabID)
	assert.Len(t, list.Consoles, 2)
	assert.Equal(t, SupportedTransports(), list.SupportedTransports)
}

func TestListConsolesUpstreamError(t *testing.T) {
	engine := &mockEngine{}
	engine.On("ListConsoles", mock.Anything, "lab1", "r1").
		Return(nil, errors.New("connection reset"))

	b := newTestBroker(engine, &fakePoller{})

	_, err := b.ListConsoles(context.Background(), "lab1", "r1")
	assert.Error(t, err)
}

func TestSupportedTransports(t *testing.T) {
	transports := SupportedTransports()

	assert.Contains(t, transports, models.TransportConsole)
	assert.Contains(t, transports, models.TransportSerial)
	assert.Len(t, transports, 2)
}
