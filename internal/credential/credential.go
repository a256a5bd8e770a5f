// Package credential derives the bearer token a request should carry to a backend.
package credential

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// Source identifies where a request's credential came from.
type Source int

const (
	SourceNone   Source = iota // no credential; the backend decides
	SourceHeader               // caller sent Authorization itself
	SourceCookie               // injected from the session cookie
)

func (s Source) String() string {
	switch s {
	case SourceHeader:
		return "header"
	case SourceCookie:
		return "cookie"
	default:
		return "none"
	}
}

// ParseCookies splits a Cookie header into name/value pairs.
// Pairs are trimmed; entries without '=' or with an empty name are skipped.
// A later duplicate name overrides an earlier one.
func ParseCookies(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		cookies[name] = value
	}
	return cookies
}

// Extract returns the bearer token for a request and where it came from.
// An Authorization header wins outright, even when empty; otherwise the named
// cookie is read.
func Extract(header http.Header, cookieName string) (string, Source) {
	if len(header.Values("Authorization")) > 0 {
		auth := header.Get("Authorization")
		if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
			return auth[len(bearerPrefix):], SourceHeader
		}
		return "", SourceHeader
	}

	cookies := ParseCookies(strings.Join(header.Values("Cookie"), ";"))
	if token := cookies[cookieName]; token != "" {
		return token, SourceCookie
	}
	return "", SourceNone
}

// Apply injects Authorization from the session cookie when the header carries
// none. An existing Authorization header is left untouched.
func Apply(header http.Header, cookieName string) (string, Source) {
	token, src := Extract(header, cookieName)
	if src == SourceCookie {
		header.Set("Authorization", bearerPrefix+token)
	}
	return token, src
}

// Claims are the identity fields the storefront puts in its access tokens.
type Claims struct {
	Subject  string
	UserType string
}

// PeekClaims decodes a JWT payload without verifying its signature. It is for
// log annotation only; backends remain responsible for authorization.
func PeekClaims(token string) (Claims, bool) {
	if token == "" {
		return Claims{}, false
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, false
	}

	var c Claims
	if sub, err := mc.GetSubject(); err == nil {
		c.Subject = sub
	}
	if ut, ok := mc["user_type"].(string); ok {
		c.UserType = ut
	}
	return c, true
}
