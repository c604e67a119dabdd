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

//go:generate mockgen -destination=mock_harness.go -package=harness github.com/carverauto/termbridge/pkg/harness Transport

package harness

import (
	"context"
	"time"

	"github.com/carverauto/termbridge/pkg/models"
)

// Status is the outcome of a single command run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Transport delivers keystrokes to a device console. The websocket
// transport is the production implementation; tests inject fakes that
// append to a scripted transcript.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Result records the outcome of one command.
type Result struct {
	Command  string          `json:"command"`
	Status   Status          `json:"status"`
	Output   []string        `json:"output,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Duration models.Duration `json:"duration"`
}

// Summary aggregates a full run.
type Summary struct {
	Total    int             `json:"total"`
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	TimedOut int             `json:"timed_out"`
	Duration models.Duration `json:"duration"`
	Results  []*Result       `json:"results"`
}

// Ok reports whether every command passed.
func (s *Summary) Ok() bool {
	return s.Failed == 0 && s.TimedOut == 0
}

// Config holds harness tuning.
type Config struct {
	// CommandTimeout bounds how long a single command may take before it
	// is recorded as timed out.
	CommandTimeout models.Duration `json:"command_timeout,omitempty"`
	// SettleInterval is the poll cadence while waiting for output. Zero
	// selects the poller's recommendation for the command, so query
	// commands are polled faster than mutating ones.
	SettleInterval models.Duration `json:"settle_interval,omitempty"`
}

const defaultCommandTimeout = 30 * time.Second
