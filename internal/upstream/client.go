// Package upstream implements the authenticated client for the lending
// backend API. All responses are decoded into the uniform envelope; HTTP
// errors carrying a well-formed envelope are handed back to the caller so
// orchestration can branch on the envelope's own status code.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/common/metrics"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithFields(map[string]interface{}{"component": "upstream"}),
	}
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, path, token string) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, token, nil)
}

// Post issues an unauthenticated POST; used only for login.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, path, "", body)
}

// PostWithToken issues an authenticated POST.
func (c *Client) PostWithToken(ctx context.Context, path, token string, body interface{}) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, path, token, body)
}

// PutWithToken issues an authenticated PUT.
func (c *Client) PutWithToken(ctx context.Context, path, token string, body interface{}) (*Envelope, error) {
	return c.do(ctx, http.MethodPut, path, token, body)
}

// DeleteWithToken issues an authenticated DELETE.
func (c *Client) DeleteWithToken(ctx context.Context, path, token string) (*Envelope, error) {
	return c.do(ctx, http.MethodDelete, path, token, nil)
}

// Download opens a raw byte stream from an absolute URL, used for schedule
// PDFs. The caller owns the response body.
func (c *Client) Download(ctx context.Context, fileURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to create download request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, brokererrors.NewUpstreamUnavailable(0, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, brokererrors.NewUpstreamUnavailable(resp.StatusCode,
			fmt.Sprintf("file download returned status %d", resp.StatusCode))
	}

	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body interface{}) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, brokererrors.NewInternal(fmt.Errorf("failed to marshal request body: %w", err))
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to create request: %w", err))
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", normalizeToken(token))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(method, "transport_error").Inc()
		c.logger.Warn("upstream request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return nil, brokererrors.NewUpstreamUnavailable(0, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(method, "read_error").Inc()
		return nil, brokererrors.NewUpstreamUnavailable(0, fmt.Sprintf("failed to read response: %v", err))
	}

	env := &Envelope{raw: data}
	parseErr := json.Unmarshal(data, env)

	if resp.StatusCode >= http.StatusBadRequest {
		// An error body that still holds the envelope is handed back so
		// the call site can branch on the envelope's own status code.
		if parseErr == nil && (env.StatusCode.Present() || env.Message != "") {
			metrics.UpstreamRequestsTotal.WithLabelValues(method, "rejected").Inc()
			return env, nil
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, brokererrors.NewUpstreamRejected(resp.StatusCode, "")
		}
		return nil, brokererrors.NewUpstreamUnavailable(resp.StatusCode, snippet(data))
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(method, "ok").Inc()
	return env, nil
}

func normalizeToken(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

func snippet(data []byte) string {
	const max = 256
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}
