// Copyright 2025 deepset GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout is the per-request timeout applied when a call does not
// override it.
const DefaultTimeout = 20 * time.Second

const clientSource = "deepset-cloud-sdk-go"

// Response is a fully read HTTP response. Bodies are small JSON documents or
// downloaded file contents, so buffering them keeps retries simple.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the status code is in the 2xx family.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Text returns the response body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Client issues authenticated, workspace-scoped requests to the deepset AI
// Platform API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      RetryPolicy
	logger     *slog.Logger
	timeout    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry replaces the retry policy used for idempotent requests. The
// policy's RetryIf is ignored; the client always classifies transport
// errors itself.
func WithRetry(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry.MaxAttempts = policy.MaxAttempts
		c.retry.Delay = policy.Delay
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		retry:      DefaultRetryPolicy(isTransportError),
		logger:     slog.Default(),
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.RetryIf = isTransportError
	return c, nil
}

// Workspace returns the default workspace name from the config.
func (c *Client) Workspace() string {
	return c.cfg.Workspace
}

// isTransportError reports whether err came from the network rather than
// from an HTTP status. Status codes are never retried at this layer.
func isTransportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

type requestOptions struct {
	params      url.Values
	body        []byte
	contentType string
	timeout     time.Duration
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions) error

// WithParams adds query parameters.
func WithParams(params url.Values) RequestOption {
	return func(o *requestOptions) error {
		o.params = params
		return nil
	}
}

// WithJSON marshals v as the JSON request body.
func WithJSON(v any) RequestOption {
	return func(o *requestOptions) error {
		body, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		o.body = body
		o.contentType = "application/json"
		return nil
	}
}

// WithBody sets a raw request body, for example a multipart form.
func WithBody(contentType string, body []byte) RequestOption {
	return func(o *requestOptions) error {
		o.body = body
		o.contentType = contentType
		return nil
	}
}

// WithRequestTimeout overrides the client's default per-request timeout.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) error {
		o.timeout = d
		return nil
	}
}

// Get makes a GET request. Transport errors are retried.
func (c *Client) Get(ctx context.Context, workspace, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.withRetry(ctx, http.MethodGet, workspace, endpoint, opts)
}

// Post makes a POST request. It is not retried.
func (c *Client) Post(ctx context.Context, workspace, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, workspace, endpoint, opts)
}

// Put makes a PUT request. Transport errors are retried.
func (c *Client) Put(ctx context.Context, workspace, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.withRetry(ctx, http.MethodPut, workspace, endpoint, opts)
}

// Patch makes a PATCH request. It is not retried.
func (c *Client) Patch(ctx context.Context, workspace, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPatch, workspace, endpoint, opts)
}

// Delete makes a DELETE request. It is not retried.
func (c *Client) Delete(ctx context.Context, workspace, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, workspace, endpoint, opts)
}

func (c *Client) withRetry(ctx context.Context, method, workspace, endpoint string, opts []RequestOption) (*Response, error) {
	var resp *Response
	err := c.retry.Do(ctx, func() error {
		var doErr error
		resp, doErr = c.do(ctx, method, workspace, endpoint, opts)
		return doErr
	})
	return resp, err
}

func (c *Client) baseURL(workspace string) (string, error) {
	if workspace == "" {
		return "", fmt.Errorf("%w: pass a workspace name or set %s", ErrWorkspaceNotDefined, EnvWorkspace)
	}
	return fmt.Sprintf("%s/workspaces/%s", c.cfg.APIURL, url.PathEscape(workspace)), nil
}

func (c *Client) do(ctx context.Context, method, workspace, endpoint string, opts []RequestOption) (*Response, error) {
	o := requestOptions{timeout: c.timeout}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	base, err := c.baseURL(workspace)
	if err != nil {
		return nil, err
	}
	requestURL := base + "/" + endpoint
	if len(o.params) > 0 {
		requestURL += "?" + o.params.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var bodyReader io.Reader
	if o.body != nil {
		bodyReader = bytes.NewReader(o.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Client-Source", clientSource)
	if o.contentType != "" {
		req.Header.Set("Content-Type", o.contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("called deepset AI Platform API",
		"method", method,
		"workspace", workspace,
		"endpoint", endpoint,
		"status", resp.StatusCode)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
