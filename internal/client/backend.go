// Package client provides the HTTP client used to reach backend services.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/model"
)

// BackendClient sends translated requests to backend services.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and a
// bounded per-call timeout. The metrics parameter is optional; pass nil to
// disable backend metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}
}

// Do sends br to a backend. service labels metrics and logs. The provided
// context controls the lifetime of the call: when it is canceled (e.g. the
// caller disconnects) the backend request is canceled too.
// The caller is responsible for closing the response body.
func (c *BackendClient) Do(ctx context.Context, service string, br *model.BackendRequest) (*model.BackendResponse, error) {
	var body io.Reader
	if br.Body != nil {
		body = bytes.NewReader(br.Body)
	}
	req, err := http.NewRequestWithContext(ctx, br.Method, br.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = br.Header

	c.logger.Debug("backend request",
		"service", service,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via BackendResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.BackendDuration.WithLabelValues(service, method).Observe(duration)
			c.metrics.BackendFailures.WithLabelValues(service).Inc()
		}
		return nil, fmt.Errorf("backend request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.BackendDuration.WithLabelValues(service, method).Observe(duration)
		c.metrics.BackendResponses.WithLabelValues(service, method, status).Inc()
	}

	return &model.BackendResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
