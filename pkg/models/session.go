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

// Package models contains shared data types for termbridge services.
package models

import "time"

// TransportType identifies how a console session reaches the device.
type TransportType string

const (
	TransportConsole TransportType = "console"
	TransportSerial  TransportType = "serial"
)

// SessionState tracks the broker-side lifecycle of a session.
// Creation is atomic: a session is only ever observed as Active or Closed;
// Requested exists for the duration of the upstream console-key exchange.
type SessionState string

const (
	SessionRequested SessionState = "requested"
	SessionActive    SessionState = "active"
	SessionClosed    SessionState = "closed"
)

// Session binds a browser viewer to a (lab, node, console) triple and its
// transport endpoint.
type Session struct {
	ID             string        `json:"session_id"`
	LabID          string        `json:"lab_id"`
	NodeID         string        `json:"node_id"`
	ConsoleID      string        `json:"console_id"`
	ConsoleKey     string        `json:"console_key,omitempty"`
	Type           TransportType `json:"type"`
	State          SessionState  `json:"state"`
	StreamEndpoint string        `json:"stream_endpoint"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Redacted returns a copy safe for listing: the console key is sensitive
// and is only returned to the creator.
func (s *Session) Redacted() *Session {
	out := *s
	out.ConsoleKey = ""

	return &out
}

// ConsoleInfo describes one console exposed by the lab engine for a node.
type ConsoleInfo struct {
	ID   string `json:"id"`
	Type string `json:"console_type"`
}

// ConsoleList is the capability-annotated console inventory for a node.
type ConsoleList struct {
	LabID               string          `json:"lab_id"`
	NodeID              string          `json:"node_id"`
	Consoles            []ConsoleInfo   `json:"consoles"`
	SupportedTransports []TransportType `json:"supported_transports"`
}
