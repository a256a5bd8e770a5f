// Package service implements the gateway pipeline: request translation,
// the backend call, and response translation.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"storefront-gateway/internal/client"
	"storefront-gateway/internal/config"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/registry"
)

// ErrMalformedJSON is returned in strict mode when a JSON request body does not parse.
var ErrMalformedJSON = errors.New("malformed JSON request body")

// hopHeaders are connection-scoped and never cross the gateway in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// GatewayService forwards storefront API calls to backend services.
type GatewayService struct {
	registry   *registry.Registry
	client     *client.BackendClient
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cookieName string
	strictJSON bool
}

// NewGatewayService creates a GatewayService. The metrics parameter is
// optional; pass nil to disable body substitution metrics.
func NewGatewayService(reg *registry.Registry, c *client.BackendClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *GatewayService {
	return &GatewayService{
		registry:   reg,
		client:     c,
		metrics:    m,
		logger:     logger.With("component", "gateway_service"),
		cookieName: cfg.Gateway.CookieName,
		strictJSON: cfg.Gateway.StrictJSON,
	}
}

// Resolve maps a service segment to its backend. It performs no I/O.
func (s *GatewayService) Resolve(service string) (registry.Target, error) {
	return s.registry.Resolve(service)
}

// Forward translates in, sends it to target, and translates the reply.
// Every error returned after translation starts is a backend failure.
func (s *GatewayService) Forward(in *model.InboundRequest, target registry.Target) (*model.GatewayResponse, error) {
	br, err := s.TranslateRequest(in, target)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(in.Ctx, target.Canonical, br)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", target.Canonical, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return s.TranslateResponse(in.Method, target.Canonical, resp), nil
}

func (s *GatewayService) countSubstitution(direction, kind string) {
	if s.metrics != nil {
		s.metrics.BodySubstitution.WithLabelValues(direction, kind).Inc()
	}
}

// stripHopHeaders removes hop-by-hop headers, including any listed in Connection.
func stripHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range splitTokens(v) {
			h.Del(name)
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
