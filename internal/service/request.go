package service

import (
	"net/http"
	"strings"

	"storefront-gateway/internal/body"
	"storefront-gateway/internal/credential"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/registry"
)

// TranslateRequest builds the backend request for in. The only error it
// returns is ErrMalformedJSON, and only in strict mode.
func (s *GatewayService) TranslateRequest(in *model.InboundRequest, target registry.Target) (*model.BackendRequest, error) {
	header := forwardHeaders(in.Header)

	token, src := credential.Apply(header, s.cookieName)
	if claims, ok := credential.PeekClaims(token); ok {
		s.logger.Debug("credential attached",
			"service", target.Canonical,
			"source", src.String(),
			"subject", claims.Subject,
			"user_type", claims.UserType,
		)
	}

	// Backend state changes between identical calls.
	if header.Get("Cache-Control") == "" {
		header.Set("Cache-Control", "no-store")
	}

	payload := body.None()
	if hasBody(in.Method) {
		payload = body.Decode(header.Get("Content-Type"), in.Body, body.RequestFallbacks)
	}

	if payload.Substituted {
		s.countSubstitution("request", payload.Kind.String())
		s.logger.Warn("request body replaced with fallback",
			"service", target.Canonical,
			"kind", payload.Kind.String(),
			"error", payload.Err,
		)
		if s.strictJSON && payload.Kind == body.JSON {
			return nil, ErrMalformedJSON
		}
	}

	return &model.BackendRequest{
		Method: in.Method,
		URL:    target.URL(in.Remainder, in.RawQuery),
		Header: header,
		Body:   payload.Data,
	}, nil
}

// forwardHeaders copies the caller's headers minus Host and anything the
// transport must own.
func forwardHeaders(src http.Header) http.Header {
	h := src.Clone()
	if h == nil {
		h = make(http.Header)
	}
	stripHopHeaders(h)
	h.Del("Host")
	// The body may be re-encoded, so its length is recomputed on send.
	h.Del("Content-Length")
	// Leaving this to the transport gets transparent gzip decoding, which the
	// JSON branch of the response translator relies on.
	h.Del("Accept-Encoding")
	return h
}

func hasBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

func splitTokens(v string) []string {
	var out []string
	for _, f := range strings.Split(v, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
