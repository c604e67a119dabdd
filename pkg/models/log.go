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

package models

// LogDelta is the result of one incremental transcript poll.
//
// NewLines carries only the lines not previously cached for the triple.
// Cumulative is populated for first-time callers that need the whole
// transcript. Reset is set when the fetched transcript was not a superset
// of the cached one (device reboot or console buffer clear); consumers
// must discard any state derived from the stale cumulative view.
type LogDelta struct {
	LabID      string   `json:"lab_id"`
	NodeID     string   `json:"node_id"`
	ConsoleID  string   `json:"console_id"`
	NewLines   []string `json:"new_lines"`
	Cumulative []string `json:"cumulative_lines,omitempty"`
	Reset      bool     `json:"reset"`
}
