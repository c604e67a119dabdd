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

package cliparse

// Mode is the CLI privilege mode encoded by a prompt.
type Mode string

const (
	ModeUnknown    Mode = "unknown"
	ModeUser       Mode = "user"
	ModePrivileged Mode = "privileged"
	ModeConfig     Mode = "config"
)

// Prompt is one detected prompt line.
type Prompt struct {
	Raw      string `json:"raw"`
	Mode     Mode   `json:"mode"`
	Hostname string `json:"hostname,omitempty"`
}

// Command is one command issued at a prompt, recorded with the mode
// active when it was issued.
type Command struct {
	Command string `json:"command"`
	Mode    Mode   `json:"mode"`
}

// Result is the structured CLI state derived from a line list. It is
// recomputed per call and has no identity of its own.
type Result struct {
	Prompts     []Prompt  `json:"prompts"`
	Commands    []Command `json:"commands"`
	CurrentMode Mode      `json:"current_mode"`
	Hostname    string    `json:"hostname,omitempty"`
}
