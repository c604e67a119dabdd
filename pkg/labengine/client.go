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

// Package labengine is the HTTP client for the remote virtual-lab engine.
//
// The engine exposes a plain REST API with no push primitive: the only
// data source for live console output is an endpoint returning the full
// accumulated transcript on every read. Incremental behavior is layered
// on top by pkg/logwatch.
package labengine

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/models"
)

const defaultRequestTimeout = 5 * time.Second

// HTTPClient is the configured lab engine client.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the engine at cfg.Endpoint.
func NewHTTPClient(cfg *Config, log logger.Logger) *HTTPClient {
	timeout := time.Duration(cfg.RequestTimeout)
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	//nolint:gosec // lab engines routinely run with self-signed certificates
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	return &HTTPClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.APIToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: log,
	}
}

// GetNode confirms a node exists and returns its metadata.
func (c *HTTPClient) GetNode(ctx context.Context, labID, nodeID string) (*Node, error) {
	var node Node

	path := fmt.Sprintf("/api/v0/labs/%s/nodes/%s", url.PathEscape(labID), url.PathEscape(nodeID))
	if err := c.getJSON(ctx, path, &node); err != nil {
		return nil, err
	}

	return &node, nil
}

// ListConsoles returns the consoles the engine exposes for a node.
func (c *HTTPClient) ListConsoles(ctx context.Context, labID, nodeID string) ([]models.ConsoleInfo, error) {
	var resp consoleListResponse

	path := fmt.Sprintf("/api/v0/labs/%s/nodes/%s/consoles", url.PathEscape(labID), url.PathEscape(nodeID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	return resp.Consoles, nil
}

// GetConsoleKey returns the engine's access key for a node's console.
func (c *HTTPClient) GetConsoleKey(ctx context.Context, labID, nodeID string) (string, error) {
	var resp consoleKeyResponse

	path := fmt.Sprintf("/api/v0/labs/%s/nodes/%s/console-key", url.PathEscape(labID), url.PathEscape(nodeID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return "", err
	}

	if resp.ConsoleKey == "" {
		return "", fmt.Errorf("%w: engine returned an empty console key", ErrUpstreamUnavailable)
	}

	return resp.ConsoleKey, nil
}

// GetTranscript returns the full accumulated console transcript as an
// ordered line list.
func (c *HTTPClient) GetTranscript(ctx context.Context, labID, nodeID, consoleID string) ([]string, error) {
	var resp struct {
		Log Transcript `json:"log"`
	}

	path := fmt.Sprintf("/api/v0/labs/%s/nodes/%s/consoles/%s/log",
		url.PathEscape(labID), url.PathEscape(nodeID), url.PathEscape(consoleID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	return resp.Log, nil
}

// ConsoleEndpoint rewrites the engine base address to the websocket
// scheme for a console key. The engine serves the interactive console on
// the same host it serves its REST API.
func (c *HTTPClient) ConsoleEndpoint(consoleKey string) string {
	ws := c.endpoint
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}

	return ws + "/console/" + url.PathEscape(consoleKey)
}

// getJSON performs one GET against the engine and decodes the JSON body,
// mapping transport failures and status codes onto the package error
// taxonomy.
func (c *HTTPClient) getJSON(ctx context.Context, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, http.NoBody)
	if err != nil {
		return err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err)
	}
	defer c.closeResponse(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w %d", ErrUpstreamUnavailable, errUnexpectedStatusCode, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %d for %s", errUnexpectedStatusCode, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding %s: %s", ErrUpstreamUnavailable, path, err)
	}

	return nil
}

// closeResponse closes the HTTP response body, logging any errors.
func (c *HTTPClient) closeResponse(resp *http.Response) {
	if err := resp.Body.Close(); err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Msg("Failed to close response body")
	}
}
