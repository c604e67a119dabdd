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

package labengine

import (
	"encoding/json"
	"strings"

	"github.com/carverauto/termbridge/pkg/models"
)

// Config holds the connection settings for the remote lab engine.
type Config struct {
	// Endpoint is the engine base URL, e.g. "https://lab-engine:9000".
	Endpoint string `json:"endpoint"`
	// APIToken is sent as a Token authorization header when non-empty.
	APIToken string `json:"api_token,omitempty"`
	// RequestTimeout bounds each engine call. Defaults to 5s: transcript
	// fetches sit on the session hot path and must fail fast.
	RequestTimeout models.Duration `json:"request_timeout,omitempty"`
	// InsecureSkipVerify disables TLS verification for self-signed lab
	// engine deployments.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// Node is the engine's node metadata, reduced to the fields termbridge
// reads.
type Node struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// consoleKeyResponse is the engine's console key document.
type consoleKeyResponse struct {
	ConsoleKey string `json:"console_key"`
}

// consoleListResponse wraps the engine's console inventory.
type consoleListResponse struct {
	Consoles []models.ConsoleInfo `json:"consoles"`
}

// Transcript normalizes the engine's log endpoint, which returns either a
// single string or an array of strings depending on engine version.
type Transcript []string

func (t *Transcript) UnmarshalJSON(b []byte) error {
	var lines []string
	if err := json.Unmarshal(b, &lines); err == nil {
		*t = lines
		return nil
	}

	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*t = SplitLines(raw)

	return nil
}

// SplitLines breaks a raw transcript string into an ordered line list.
// Both CRLF and bare LF terminators appear in device output.
func SplitLines(raw string) []string {
	if raw == "" {
		return []string{}
	}

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimSuffix(raw, "\n")

	return strings.Split(raw, "\n")
}
