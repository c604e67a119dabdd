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

package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsDialTimeout = 10 * time.Second

// WSTransport sends keystrokes over a websocket, either directly to an
// engine console endpoint or to a broker session stream.
type WSTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Transport = (*WSTransport)(nil)

// DialWS connects to a console websocket endpoint.
func DialWS(ctx context.Context, endpoint string) (*WSTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	// The console pushes raw output we never consume; drain it so the
	// peer's writes do not block on a full read buffer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return &WSTransport{conn: conn}, nil
}

// Send writes one text message to the console.
func (t *WSTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn.Close()
}
