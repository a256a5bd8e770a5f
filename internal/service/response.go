package service

import (
	"net/http"

	"github.com/tidwall/gjson"

	"storefront-gateway/internal/body"
	"storefront-gateway/internal/model"
)

// TranslateResponse converts a backend reply into what the caller receives.
// Status code and status text are never altered. JSON bodies are re-emitted
// with a single Content-Type header; everything else keeps the backend's
// headers and raw bytes.
func (s *GatewayService) TranslateResponse(method, service string, resp *model.BackendResponse) *model.GatewayResponse {
	out := &model.GatewayResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}

	contentType := resp.Header.Get("Content-Type")
	kind := body.Classify(contentType)

	if kind == body.JSON {
		out.Header = http.Header{"Content-Type": {"application/json"}}
	} else {
		out.Header = resp.Header.Clone()
		if out.Header == nil {
			out.Header = make(http.Header)
		}
		stripHopHeaders(out.Header)
		out.Header.Del("Content-Length")
		kind = body.Text
	}

	if !responseHasBody(method, resp.StatusCode) {
		return out
	}

	payload := body.DecodeAs(kind, contentType, resp.Body, body.ResponseFallbacks)
	if payload.Substituted {
		s.countSubstitution("response", payload.Kind.String())
		s.logger.Warn("response body replaced with fallback",
			"service", service,
			"status", resp.StatusCode,
			"kind", payload.Kind.String(),
			"error", payload.Err,
		)
	} else if resp.StatusCode >= http.StatusBadRequest && kind == body.JSON {
		s.logger.Info("backend returned error",
			"service", service,
			"status", resp.StatusCode,
			"detail", backendDetail(payload.Data),
		)
	}
	out.Body = payload.Data
	return out
}

// responseHasBody reports whether a reply to method with status may carry a body.
func responseHasBody(method string, status int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// backendDetail pulls the human-readable message out of a backend error body.
func backendDetail(data []byte) string {
	for _, field := range []string{"detail", "message", "error"} {
		if r := gjson.GetBytes(data, field); r.Exists() {
			return r.String()
		}
	}
	return ""
}
