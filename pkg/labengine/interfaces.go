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

//go:generate mockgen -destination=mock_client.go -package=labengine github.com/carverauto/termbridge/pkg/labengine Client

package labengine

import (
	"context"

	"github.com/carverauto/termbridge/pkg/models"
)

// Client is the read-only surface of the remote lab engine consumed by
// termbridge. The engine owns all lab state; termbridge only reads node
// metadata, console keys, and console transcripts.
type Client interface {
	// GetNode confirms a node exists and returns its metadata.
	GetNode(ctx context.Context, labID, nodeID string) (*Node, error)

	// ListConsoles returns the consoles the engine exposes for a node.
	ListConsoles(ctx context.Context, labID, nodeID string) ([]models.ConsoleInfo, error)

	// GetConsoleKey returns the engine's access key for a node's console.
	GetConsoleKey(ctx context.Context, labID, nodeID string) (string, error)

	// GetTranscript returns the full accumulated console transcript as an
	// ordered line list. Reads are idempotent and the transcript may
	// shrink or reset when the device reboots.
	GetTranscript(ctx context.Context, labID, nodeID, consoleID string) ([]string, error)

	// ConsoleEndpoint derives the websocket endpoint for a console key by
	// rewriting the engine base address to the transport scheme.
	ConsoleEndpoint(consoleKey string) string
}
