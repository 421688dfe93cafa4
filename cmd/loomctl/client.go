// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type agentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type listAgentsResponse struct {
	Agents []agentStatus `json:"agents"`
	Error  string        `json:"error"`
}

type createAgentResponse struct {
	Created    bool   `json:"created"`
	ThreadName string `json:"threadName"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
}

type sendMessageResponse struct {
	Delivered bool     `json:"delivered"`
	Target    string   `json:"target"`
	Error     string   `json:"error"`
	Available []string `json:"available"`
}

type historyEntry struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	TimestampMS int64  `json:"timestampMs"`
}

type historyResponse struct {
	Thread   string         `json:"thread"`
	Messages []historyEntry `json:"messages"`
	Error    string         `json:"error"`
}

// apiClient is a minimal HTTP client for loom-agentd's control API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) listAgents(ctx context.Context) (listAgentsResponse, error) {
	var out listAgentsResponse
	err := c.do(ctx, http.MethodGet, "/api/agents", nil, &out)
	return out, err
}

func (c *apiClient) createAgent(ctx context.Context, threadName string) (createAgentResponse, error) {
	var out createAgentResponse
	err := c.do(ctx, http.MethodPost, "/api/agents", map[string]string{"threadName": threadName}, &out)
	return out, err
}

func (c *apiClient) sendMessage(ctx context.Context, target, sender, message string) (sendMessageResponse, error) {
	var out sendMessageResponse
	path := fmt.Sprintf("/api/agents/%s/message", target)
	err := c.do(ctx, http.MethodPost, path, map[string]string{"message": message, "sender": sender}, &out)
	return out, err
}

func (c *apiClient) history(ctx context.Context, target string, count int) (historyResponse, error) {
	var out historyResponse
	path := fmt.Sprintf("/api/agents/%s/history", target)
	if count > 0 {
		path = fmt.Sprintf("%s?count=%d", path, count)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = *bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s %s: %w", method, path, err)
	}
	return nil
}
