package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"dubbing/internal/services"
	"dubbing/internal/stage"
)

const (
	userAgent          = "Dubbing-Go/0.1.0"
	defaultHTTPTimeout = 2 * time.Minute
	maxErrorBody       = 2048
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.StatusCode, body)
}

// client is a small JSON-over-HTTP helper shared by every adapter.
type client struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(name, baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &client{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    httpClient,
	}
}

func (c *client) configured() bool {
	return c != nil && c.baseURL != ""
}

// postJSON sends in as JSON to path and decodes the response into out.
func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	if !c.configured() {
		return fmt.Errorf("%s: endpoint not configured", c.name)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(&StatusError{Service: c.name, StatusCode: resp.StatusCode, Body: string(body)})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

func (c *client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// health probes GET /health.
func (c *client) health(ctx context.Context) stage.Health {
	if !c.configured() {
		return stage.Unhealthy(c.name, "endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return stage.Unhealthy(c.name, err.Error())
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return stage.Unhealthy(c.name, err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return stage.Unhealthy(c.name, fmt.Sprintf("health returned %d", resp.StatusCode))
	}
	return stage.Healthy(c.name)
}

func classifyStatus(err *StatusError) error {
	switch {
	case err.StatusCode == http.StatusTooManyRequests:
		return services.Tag(services.KindQuota, fmt.Errorf("%w: %w", services.ErrQuotaExceeded, err))
	case err.StatusCode == http.StatusInsufficientStorage:
		return services.Tag(services.KindResource, err)
	case err.StatusCode == http.StatusRequestTimeout, err.StatusCode >= 500:
		return services.Tag(services.KindTransient, err)
	default:
		return err
	}
}

func classifyTransport(name string, err error) error {
	wrapped := fmt.Errorf("%s: %w", name, err)
	if errors.Is(err, context.Canceled) {
		return wrapped
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return services.Tag(services.KindTransient, wrapped)
	}
	return wrapped
}

func seconds(d float64) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(d * float64(time.Second))
}

// ClientOption customizes remote clients.
type ClientOption func(*clientOptions)

type clientOptions struct {
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(o *clientOptions) { o.apiKey = key }
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = timeout }
}

// WithHTTPClient overrides the HTTP client. Timeout options are ignored when set.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

func applyClientOptions(opts []ClientOption) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
