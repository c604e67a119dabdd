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

package broker

import "errors"

var (
	// ErrInvalidRequest marks a session request with missing lab/node ids.
	ErrInvalidRequest = errors.New("lab_id and node_id are required")

	// ErrUnsupportedTransport marks a session request for a transport
	// type outside the broker's capability map.
	ErrUnsupportedTransport = errors.New("unsupported transport type")
)
