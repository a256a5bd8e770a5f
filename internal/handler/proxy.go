package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/registry"
	"storefront-gateway/internal/service"
)

// Error codes carried in model.ErrorResponse.Code.
const (
	CodeServiceNotConfigured = "service_not_configured"
	CodeServiceUnknown       = "service_unknown"
	CodeMalformedJSON        = "malformed_json"
	CodeBackendUnreachable   = "backend_unreachable"
	CodeBackendTimeout       = "backend_timeout"
)

const msgBackendFailure = "Failed to connect to backend service"

// GatewayHandler serves <mount>/<service>/<remainder> for every method.
type GatewayHandler struct {
	service *service.GatewayService
	mount   string
	logger  *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(svc *service.GatewayService, cfg *config.Config, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		service: svc,
		mount:   cfg.Gateway.MountPath,
		logger:  logger.With("component", "gateway_handler"),
	}
}

// Handle resolves the service segment, forwards the call and writes the
// backend's translated reply. Resolution happens before any network I/O, so a
// misconfigured service never reaches a backend.
func (h *GatewayHandler) Handle(c echo.Context) error {
	req := c.Request()

	segment, remainder := h.split(req.URL)
	if segment == "" {
		return c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error: "Service name missing from path",
			Code:  CodeServiceUnknown,
		})
	}

	target, err := h.service.Resolve(segment)
	if err != nil {
		return h.mapError(c, segment, err)
	}
	c.Set(model.ServiceKey, target.Canonical)

	header := req.Header.Clone()
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		header.Set(echo.HeaderXRequestID, id)
	}

	in := &model.InboundRequest{
		Ctx:       req.Context(),
		Method:    req.Method,
		Service:   segment,
		Remainder: remainder,
		RawQuery:  req.URL.RawQuery,
		Header:    header,
		Body:      req.Body,
	}

	resp, err := h.service.Forward(in, target)
	if err != nil {
		return h.mapError(c, segment, err)
	}

	// Backend values replace anything middleware already set for the same key.
	out := c.Response()
	for key, vals := range resp.Header {
		out.Header()[key] = vals
	}
	if resp.Body != nil {
		out.Header().Set(echo.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	}
	out.WriteHeader(resp.StatusCode)

	if len(resp.Body) > 0 {
		if _, err := out.Write(resp.Body); err != nil {
			h.logger.Error("writing response body",
				"err", err,
				"service", target.Canonical,
			)
		}
	}
	return nil
}

// split returns the unescaped service segment and the still-escaped remainder.
func (h *GatewayHandler) split(u *url.URL) (string, string) {
	rest := strings.TrimPrefix(u.EscapedPath(), h.mount)
	rest = strings.TrimPrefix(rest, "/")
	segment, remainder, _ := strings.Cut(rest, "/")
	if s, err := url.PathUnescape(segment); err == nil {
		segment = s
	}
	return segment, remainder
}

func (h *GatewayHandler) mapError(c echo.Context, segment string, err error) error {
	var cfgErr *registry.ConfigError
	if errors.As(err, &cfgErr) {
		h.logger.Error("service not configured",
			"service", cfgErr.Service,
			"variable", cfgErr.Variable,
		)
		details := "missing " + cfgErr.Variable
		if cfgErr.Invalid != "" {
			details = "invalid " + cfgErr.Variable
		}
		return c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   cfgErr.Error(),
			Code:    CodeServiceNotConfigured,
			Details: details,
		})
	}

	if errors.Is(err, registry.ErrUnknownService) {
		h.logger.Warn("unknown service", "service", segment)
		return c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error: "Unknown service " + segment,
			Code:  CodeServiceUnknown,
		})
	}

	if errors.Is(err, service.ErrMalformedJSON) {
		return c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error: "Request body is not valid JSON",
			Code:  CodeMalformedJSON,
		})
	}

	h.logger.Error("backend request failed",
		"err", err,
		"service", segment,
		"path", c.Request().URL.Path,
	)

	code := CodeBackendUnreachable
	if isTimeout(err) {
		code = CodeBackendTimeout
	}
	return c.JSON(http.StatusBadGateway, model.ErrorResponse{
		Error:   msgBackendFailure,
		Code:    code,
		Details: err.Error(),
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
