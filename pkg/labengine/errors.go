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

import "errors"

var (
	// ErrNotFound means the lab, node, or console does not exist upstream.
	// Not retried; surfaced to clients as a 404.
	ErrNotFound = errors.New("lab resource not found")

	// ErrUpstreamUnavailable means the engine timed out or returned a
	// server error. The next poll tick retries; the poller itself does not.
	ErrUpstreamUnavailable = errors.New("lab engine unavailable")

	errUnexpectedStatusCode = errors.New("unexpected status code")
)
