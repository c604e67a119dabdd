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
	"errors"

	"github.com/carverauto/termbridge/pkg/broker"
	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/logwatch"
	"github.com/carverauto/termbridge/pkg/models"
)

var errMissingEngineEndpoint = errors.New("engine.endpoint is required")

// Config is the termbridge service configuration document.
type Config struct {
	ListenAddr  string            `json:"listen_addr"`
	ServiceName string            `json:"service_name,omitempty"`
	APIKey      string            `json:"api_key,omitempty"`
	CORS        models.CORSConfig `json:"cors"`
	Engine      labengine.Config  `json:"engine"`
	Poll        logwatch.Config   `json:"poll"`
	Broker      broker.Config     `json:"broker"`
	Logging     *logger.Config    `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Engine.Endpoint == "" {
		return errMissingEngineEndpoint
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}

	if c.ServiceName == "" {
		c.ServiceName = "termbridge"
	}

	return nil
}

// CloseSessionResponse acknowledges a session close. Closing an unknown
// session still reports closed (idempotent close).
type CloseSessionResponse struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

// ConsoleKeyResponse carries a pass-through console key query result.
type ConsoleKeyResponse struct {
	LabID      string `json:"lab_id"`
	NodeID     string `json:"node_id"`
	ConsoleKey string `json:"console_key"`
}

// BootlogRequest is a submitted boot transcript for analysis. Log accepts
// either a single string or an array of lines.
type BootlogRequest struct {
	Log labengine.Transcript `json:"log"`
}
