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

package logwatch

import (
	"sync"
	"time"
)

const defaultCacheTTL = 10 * time.Minute

// Key identifies one cached transcript.
type Key struct {
	LabID     string
	NodeID    string
	ConsoleID string
}

// entry holds the memoized transcript for one triple. The line slice is
// immutable once stored; Poll replaces it atomically instead of appending,
// so concurrent readers never observe a partial update.
type entry struct {
	lines   []string
	fetched time.Time
}

// Cache memoizes the last known transcript per (lab, node, console)
// triple with a TTL. Safe for concurrent use; the lock is never held
// across network fetches.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   Clock
	entries map[Key]*entry
}

// NewCache creates a transcript cache. A non-positive ttl selects the
// default. A nil clock selects the real clock.
func NewCache(ttl time.Duration, clock Clock) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	if clock == nil {
		clock = realClock{}
	}

	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[Key]*entry),
	}
}

// Get returns the cached line list for a key. Expired entries read as
// absent and are dropped.
func (c *Cache) Get(key Key) ([]string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.clock.Now().Sub(e.fetched) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; another poll may have refreshed it.
		if cur, still := c.entries[key]; still && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		return nil, false
	}

	return e.lines, true
}

// Put replaces the cached line list for a key. The caller must not mutate
// lines after handing them over.
func (c *Cache) Put(key Key, lines []string) {
	e := &entry{
		lines:   lines,
		fetched: c.clock.Now(),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Clear removes the cached entry for a key so a later session on the same
// triple starts from a clean baseline.
func (c *Cache) Clear(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
