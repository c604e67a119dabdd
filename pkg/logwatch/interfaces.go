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

//go:generate mockgen -destination=mock_logwatch.go -package=logwatch github.com/carverauto/termbridge/pkg/logwatch LogPoller,Clock,Ticker

package logwatch

import (
	"context"
	"time"

	"github.com/carverauto/termbridge/pkg/models"
)

// LogPoller turns the engine's fetch-whole-transcript primitive into an
// incremental one. Implementations are synchronous and own no timer; the
// caller schedules Poll on whatever cadence RecommendedPollInterval
// suggests.
type LogPoller interface {
	Poll(ctx context.Context, labID, nodeID, consoleID string) (*models.LogDelta, error)
	Transcript(ctx context.Context, labID, nodeID, consoleID string) ([]string, error)
	ClearCache(labID, nodeID, consoleID string)
	SetPollInterval(d time.Duration)
	PollInterval() time.Duration
	RecommendedPollInterval(lastCommand string) time.Duration
}

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// realClock implements Clock using the real time package.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Ticker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) Chan() <-chan time.Time {
	return r.t.C
}

func (r *realTicker) Stop() {
	r.t.Stop()
}

// RealClock returns the production Clock.
func RealClock() Clock {
	return realClock{}
}
