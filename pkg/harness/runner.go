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

// Package harness runs scripted command lists against a live device
// console and classifies each command as success, error, or timeout
// from the transcript it produces.
package harness

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/carverauto/termbridge/pkg/cliparse"
	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/logwatch"
	"github.com/carverauto/termbridge/pkg/models"
)

// errorMarkers are substrings a network OS prints when a command is
// rejected. Matching is case-sensitive; these are literal device
// outputs, not free text.
var errorMarkers = []string{
	"% Invalid input",
	"% Unknown command",
	"% Ambiguous command",
	"% Incomplete command",
	"syntax error",
	"unknown command",
	"Error:",
	"ERROR:",
}

// Runner executes commands against one (lab, node, console) triple.
type Runner struct {
	transport Transport
	poller    logwatch.LogPoller
	clock     logwatch.Clock
	logger    logger.Logger

	labID     string
	nodeID    string
	consoleID string

	cmdTimeout     time.Duration
	settleInterval time.Duration
}

// NewRunner builds a runner for the given triple.
func NewRunner(transport Transport, poller logwatch.LogPoller, labID, nodeID, consoleID string, cfg *Config, log logger.Logger) *Runner {
	r := &Runner{
		transport:  transport,
		poller:     poller,
		clock:      logwatch.RealClock(),
		logger:     log,
		labID:      labID,
		nodeID:     nodeID,
		consoleID:  consoleID,
		cmdTimeout: defaultCommandTimeout,
	}

	if cfg != nil {
		if d := time.Duration(cfg.CommandTimeout); d > 0 {
			r.cmdTimeout = d
		}

		if d := time.Duration(cfg.SettleInterval); d > 0 {
			r.settleInterval = d
		}
	}

	return r
}

// SetClock overrides the runner clock. Tests inject fakes here.
func (r *Runner) SetClock(c logwatch.Clock) {
	r.clock = c
}

// Run executes the commands in order and aggregates their outcomes. The
// run continues past failures so one bad command still yields a full
// report; it aborts only when the transport or engine is gone.
func (r *Runner) Run(ctx context.Context, commands []string) (*Summary, error) {
	// Seed the cache so pre-existing transcript history is not attributed
	// to the first command.
	if _, err := r.poller.Poll(ctx, r.labID, r.nodeID, r.consoleID); err != nil {
		return nil, err
	}

	runStart := r.clock.Now()
	summary := &Summary{Results: make([]*Result, 0, len(commands))}

	for _, cmd := range commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" || strings.HasPrefix(cmd, "#") {
			continue
		}

		res, err := r.runOne(ctx, cmd)
		if err != nil {
			return nil, err
		}

		summary.Total++
		summary.Results = append(summary.Results, res)

		switch res.Status {
		case StatusSuccess:
			summary.Passed++
		case StatusError:
			summary.Failed++
		case StatusTimeout:
			summary.TimedOut++
		}

		r.logger.Info().
			Str("command", cmd).
			Str("status", string(res.Status)).
			Int("output_lines", len(res.Output)).
			Msg("Command finished")
	}

	summary.Duration = models.Duration(r.clock.Now().Sub(runStart))

	return summary, nil
}

// runOne sends a command and polls until the device prints its next
// prompt or the per-command deadline passes. Query commands are polled
// on the fast cadence since their output trickles in over seconds.
func (r *Runner) runOne(ctx context.Context, cmd string) (*Result, error) {
	start := r.clock.Now()
	deadline := start.Add(r.cmdTimeout)

	if err := r.transport.Send(ctx, []byte(cmd+"\n")); err != nil {
		return nil, err
	}

	res := &Result{Command: cmd}

	interval := r.settleInterval
	if interval <= 0 {
		interval = r.poller.RecommendedPollInterval(cmd)
	}

	ticker := r.clock.Ticker(interval)
	defer ticker.Stop()

	var output []string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case now := <-ticker.Chan():
			delta, err := r.poller.Poll(ctx, r.labID, r.nodeID, r.consoleID)
			if err != nil {
				if errors.Is(err, labengine.ErrUpstreamUnavailable) && now.Before(deadline) {
					continue
				}

				return nil, err
			}

			if delta.Reset {
				// The device restarted mid-command. Whatever caused it,
				// the command did not complete normally.
				res.Status = StatusError
				res.Reason = "device reset during command"
				res.Output = delta.NewLines
				res.Duration = models.Duration(r.clock.Now().Sub(start))

				return res, nil
			}

			output = append(output, delta.NewLines...)

			if settled(output) {
				res.Output = output
				res.Duration = models.Duration(r.clock.Now().Sub(start))
				res.Status, res.Reason = classify(output)

				return res, nil
			}

			if !now.Before(deadline) {
				res.Output = output
				res.Duration = models.Duration(r.clock.Now().Sub(start))

				// Output arrived but the prompt never came back; judge on
				// what we have. Silence is the only true timeout.
				if len(output) > 0 {
					res.Status, res.Reason = classify(output)
				} else {
					res.Status = StatusTimeout
					res.Reason = "no output before deadline"
				}

				return res, nil
			}
		}
	}
}

// settled reports whether the output has reached the device's next
// prompt: the last line is a bare prompt and at least one line (the
// command echo) precedes it.
func settled(output []string) bool {
	if len(output) < 2 {
		return false
	}

	last := output[len(output)-1]

	parsed := cliparse.Parse([]string{last})

	return len(parsed.Prompts) == 1 && len(parsed.Commands) == 0
}

// classify scans command output for device error markers.
func classify(output []string) (Status, string) {
	for _, line := range output {
		for _, marker := range errorMarkers {
			if strings.Contains(line, marker) {
				return StatusError, strings.TrimSpace(line)
			}
		}
	}

	return StatusSuccess, ""
}
