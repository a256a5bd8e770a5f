package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/registry"
)

// Version is a string type for dependency injection of the build version.
type Version string

// StatusResponse is the body of the gateway status endpoint.
type StatusResponse struct {
	Status     string                   `json:"status"`
	Version    string                   `json:"version"`
	BaseURL    string                   `json:"base_url"`
	APIVersion string                   `json:"api_version"`
	Services   []registry.ServiceStatus `json:"services"`
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	registry *registry.Registry
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(reg *registry.Registry, v Version) *HealthHandler {
	return &HealthHandler{registry: reg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status lists every known service and whether its port is configured.
// Port values are not exposed.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:     "ok",
		Version:    string(h.version),
		BaseURL:    h.registry.BaseURL(),
		APIVersion: h.registry.APIVersion(),
		Services:   h.registry.Services(),
	})
}
