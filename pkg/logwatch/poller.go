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

// Package logwatch implements incremental transcript polling against the
// lab engine's fetch-everything log endpoint.
package logwatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/termbridge/pkg/labengine"
	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/models"
)

const (
	defaultPollInterval = 3 * time.Second
	fastPollInterval    = 500 * time.Millisecond
)

// slowCommandPrefixes are command verbs whose output arrives over several
// seconds; while one is in flight the recommended cadence drops to the
// fast interval so the browser sees output as it lands.
var slowCommandPrefixes = []string{"show", "ping", "traceroute", "monitor", "debug", "request"}

// Config holds poller tuning.
type Config struct {
	PollInterval models.Duration `json:"poll_interval,omitempty"`
	FastInterval models.Duration `json:"fast_interval,omitempty"`
	CacheTTL     models.Duration `json:"cache_ttl,omitempty"`
}

// Poller fetches transcripts from the engine and diffs them against the
// cache. All methods are synchronous and safe for concurrent use from
// multiple session loops.
type Poller struct {
	engine labengine.Client
	cache  *Cache
	logger logger.Logger

	mu           sync.RWMutex
	pollInterval time.Duration
	fastInterval time.Duration
}

var _ LogPoller = (*Poller)(nil)

// NewPoller builds a poller over the given engine client and cache.
func NewPoller(engine labengine.Client, cache *Cache, cfg *Config, log logger.Logger) *Poller {
	p := &Poller{
		engine:       engine,
		cache:        cache,
		logger:       log,
		pollInterval: defaultPollInterval,
		fastInterval: fastPollInterval,
	}

	if cfg != nil {
		if d := time.Duration(cfg.PollInterval); d > 0 {
			p.pollInterval = d
		}

		if d := time.Duration(cfg.FastInterval); d > 0 {
			p.fastInterval = d
		}
	}

	return p
}

// Poll fetches the current transcript for a triple and returns only the
// lines not previously seen.
//
// When the fetched transcript is not a superset of the cached one the
// device was reset or the console buffer was truncated upstream; the
// whole fetch is treated as new, the cache is replaced wholesale, and the
// delta carries Reset so consumers discard stale derived state. Upstream
// failures leave the cache untouched; retrying is the caller's next tick.
func (p *Poller) Poll(ctx context.Context, labID, nodeID, consoleID string) (*models.LogDelta, error) {
	if labID == "" || nodeID == "" || consoleID == "" {
		return nil, ErrInvalidTriple
	}

	fetched, err := p.engine.GetTranscript(ctx, labID, nodeID, consoleID)
	if err != nil {
		return nil, err
	}

	key := Key{LabID: labID, NodeID: nodeID, ConsoleID: consoleID}

	delta := &models.LogDelta{
		LabID:     labID,
		NodeID:    nodeID,
		ConsoleID: consoleID,
	}

	cached, ok := p.cache.Get(key)

	switch {
	case !ok:
		// First poll for the triple (or TTL expiry): everything is new and
		// the caller gets the cumulative view to seed its display.
		delta.NewLines = fetched
		delta.Cumulative = fetched
	case isPrefix(cached, fetched):
		delta.NewLines = fetched[len(cached):]
	default:
		delta.NewLines = fetched
		delta.Cumulative = fetched
		delta.Reset = true

		p.logger.Info().
			Str("lab_id", labID).
			Str("node_id", nodeID).
			Str("console_id", consoleID).
			Int("cached_lines", len(cached)).
			Int("fetched_lines", len(fetched)).
			Msg("Transcript reset detected")
	}

	p.cache.Put(key, fetched)

	return delta, nil
}

// isPrefix reports whether cached is an element-wise prefix of fetched.
func isPrefix(cached, fetched []string) bool {
	if len(fetched) < len(cached) {
		return false
	}

	for i := range cached {
		if fetched[i] != cached[i] {
			return false
		}
	}

	return true
}

// Transcript refreshes the cache for a triple and returns the full
// cumulative line list. Used by callers that reparse history for mode
// and hostname correctness rather than consuming deltas.
func (p *Poller) Transcript(ctx context.Context, labID, nodeID, consoleID string) ([]string, error) {
	if labID == "" || nodeID == "" || consoleID == "" {
		return nil, ErrInvalidTriple
	}

	fetched, err := p.engine.GetTranscript(ctx, labID, nodeID, consoleID)
	if err != nil {
		return nil, err
	}

	p.cache.Put(Key{LabID: labID, NodeID: nodeID, ConsoleID: consoleID}, fetched)

	return fetched, nil
}

// ClearCache drops the cached transcript for a triple. Called on session
// close so the next session does not replay history as new lines.
func (p *Poller) ClearCache(labID, nodeID, consoleID string) {
	p.cache.Clear(Key{LabID: labID, NodeID: nodeID, ConsoleID: consoleID})
}

// SetPollInterval overrides the default cadence recommendation.
func (p *Poller) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	p.mu.Lock()
	p.pollInterval = d
	p.mu.Unlock()
}

// PollInterval returns the default cadence.
func (p *Poller) PollInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.pollInterval
}

// RecommendedPollInterval returns the cadence the session loop should use
// given the most recent command sent to the device. Slow query commands
// get the fast interval until their output settles.
func (p *Poller) RecommendedPollInterval(lastCommand string) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cmd := strings.ToLower(strings.TrimSpace(lastCommand))
	for _, prefix := range slowCommandPrefixes {
		if strings.HasPrefix(cmd, prefix) {
			return p.fastInterval
		}
	}

	return p.pollInterval
}
