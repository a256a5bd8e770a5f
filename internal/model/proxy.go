// Package model defines the per-request value shapes shared by the gateway layers.
package model

import (
	"context"
	"io"
	"net/http"
)

// InboundRequest is a snapshot of a caller's request after the service segment
// has been split off the path.
type InboundRequest struct {
	Ctx       context.Context
	Method    string
	Service   string // first path segment, as sent by the caller
	Remainder string // everything after the service segment, without a leading slash
	RawQuery  string
	Header    http.Header
	Body      io.Reader
}

// BackendRequest is the fully translated request ready to be sent to a backend.
type BackendRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte // nil means "no body"
}

// BackendResponse is a backend's reply before translation.
// The caller is responsible for closing Body.
type BackendResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}

// GatewayResponse is what the gateway writes back to the caller.
type GatewayResponse struct {
	StatusCode int
	Status     string // backend status line text, e.g. "201 Created"
	Header     http.Header
	Body       []byte
}

// ErrorResponse is the JSON envelope for errors produced by the gateway itself.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// ServiceKey is the echo.Context key holding the canonical service of a
// gateway request once it has been resolved.
const ServiceKey = "service"
