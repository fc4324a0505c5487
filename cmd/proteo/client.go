// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AleutianAI/AleutianProteo/services/opendata"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/services"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx answer from the orchestrator.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// SourceList is the body of GET /v1/opendata/sources.
type SourceList struct {
	Sources []opendata.Source   `json:"sources"`
	Cache   opendata.CacheStats `json:"cache"`
}

// Client talks to the orchestrator HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the server at base.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Ask posts one chat message.
func (c *Client) Ask(ctx context.Context, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	var resp datatypes.ChatResponse
	err := c.do(ctx, http.MethodPost, "/v1/chat", req, &resp, http.StatusOK)
	return resp, err
}

// Health fetches the orchestrator health report. A 503 still carries a
// report and is not an error.
func (c *Client) Health(ctx context.Context) (services.HealthReport, error) {
	var report services.HealthReport
	err := c.do(ctx, http.MethodGet, "/v1/system/health", nil, &report, http.StatusOK, http.StatusServiceUnavailable)
	return report, err
}

// Sources lists the open-data catalog.
func (c *Client) Sources(ctx context.Context) (SourceList, error) {
	var list SourceList
	err := c.do(ctx, http.MethodGet, "/v1/opendata/sources", nil, &list, http.StatusOK)
	return list, err
}

// Export downloads a session export. filename comes from the
// Content-Disposition header and may be empty.
func (c *Client) Export(ctx context.Context, sessionID string) (data []byte, filename string, err error) {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/export"
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", apiError(resp.StatusCode, body)
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return body, filename, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
	}
	return apiError(resp.StatusCode, body)
}

func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact orchestrator at %s: %w", c.base, err)
	}
	return resp, nil
}

func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	return &APIError{Status: status, Message: payload.Error}
}
