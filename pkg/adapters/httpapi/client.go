// Package httpapi implements the collaborator interfaces on top of the
// brewing REST API.
package httpapi

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
	"strings"
	"sync"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/brewing/pkg/core"
)

const (
	// DefaultBaseURL is where the brewing API listens by default.
	DefaultBaseURL = "http://localhost:9680"
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second
)

// Client talks to the REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	requests  int
	failures  int
	lastError string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithTimeout sets the timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient.Timeout = d
	}
}

// New creates a client for the API at baseURL. An empty baseURL means
// DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "httpapi")
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchAll lists every specification.
func (c *Client) FetchAll(ctx context.Context) ([]core.Specification, error) {
	var list []feature
	if err := c.do(ctx, http.MethodGet, "/features", nil, &list); err != nil {
		return nil, err
	}
	specs := make([]core.Specification, 0, len(list))
	for _, f := range list {
		specs = append(specs, f.toDomain())
	}
	return specs, nil
}

// FetchOne reads a single specification.
func (c *Client) FetchOne(ctx context.Context, id string) (core.Specification, error) {
	var f feature
	if err := c.do(ctx, http.MethodGet, featurePath(id), nil, &f); err != nil {
		return core.Specification{}, err
	}
	return f.toDomain(), nil
}

// Create posts a new specification. The server assigns the id and dates.
func (c *Client) Create(ctx context.Context, spec core.Specification) (core.Specification, error) {
	var f feature
	if err := c.do(ctx, http.MethodPost, "/features", fromDomain(spec), &f); err != nil {
		return core.Specification{}, err
	}
	return f.toDomain(), nil
}

// Replace puts the full record under id.
func (c *Client) Replace(ctx context.Context, id string, spec core.Specification) (core.Specification, error) {
	var f feature
	if err := c.do(ctx, http.MethodPut, featurePath(id), fromDomain(spec), &f); err != nil {
		return core.Specification{}, err
	}
	return f.toDomain(), nil
}

// Remove deletes the specification.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, featurePath(id), nil, nil)
}

// GetProject reads the project configuration.
func (c *Client) GetProject(ctx context.Context) (core.Project, error) {
	var p core.Project
	if err := c.do(ctx, http.MethodGet, "/project", nil, &p); err != nil {
		return core.Project{}, err
	}
	return p, nil
}

// UpdateProject writes the project configuration.
func (c *Client) UpdateProject(ctx context.Context, update core.ProjectUpdate) (core.Project, error) {
	var p core.Project
	if err := c.do(ctx, http.MethodPut, "/project", update, &p); err != nil {
		return core.Project{}, err
	}
	return p, nil
}

// Health probes the API.
func (c *Client) Health(ctx context.Context) error {
	var h struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return err
	}
	if h.Status != "" && h.Status != "healthy" {
		return fmt.Errorf("%w: api reports %q", core.ErrNetwork, h.Status)
	}
	return nil
}

func featurePath(id string) string {
	return "/features/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	defer func() { c.record(err) }()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s %s: %v", core.ErrNetwork, method, path, err)
	}
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := decode(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

// decode accepts bare bodies and bodies wrapped in {"data": ...}.
func decode(data []byte, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err == nil {
			_, isRecord := envelope["id"]
			if inner, ok := envelope["data"]; ok && !isRecord {
				trimmed = inner
			}
		}
	}
	return json.Unmarshal(trimmed, out)
}

func statusError(method, path string, code int, body []byte) error {
	detail := errorDetail(body)
	var kind error
	switch {
	case code == http.StatusNotFound:
		kind = core.ErrNotFound
	case code == http.StatusConflict, code == http.StatusPreconditionFailed:
		kind = core.ErrConflict
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		kind = core.ErrValidationFailed
	case code >= 500:
		kind = core.ErrNetwork
	default:
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, code, detail)
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", kind, method, path, code, detail)
}

// errorDetail extracts a readable message from an error body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case len(payload.Detail) > 0:
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil {
				return s
			}
			return string(payload.Detail)
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (c *Client) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		c.failures++
		c.lastError = err.Error()
	}
}

// ClientState exposes internal state for observability.
type ClientState struct {
	BaseURL   string `json:"base_url"`
	Requests  int    `json:"requests"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Client) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientState{
		BaseURL:   c.baseURL,
		Requests:  c.requests,
		Failures:  c.failures,
		LastError: c.lastError,
	}
}

// ComponentType implements introspection.Component.
func (c *Client) ComponentType() string {
	return "httpapi"
}

var (
	_ core.Persistence   = (*Client)(nil)
	_ core.ProjectStore  = (*Client)(nil)
	_ core.HealthChecker = (*Client)(nil)
)

var _ introspection.Introspectable = (*Client)(nil)
var _ introspection.Component = (*Client)(nil)
