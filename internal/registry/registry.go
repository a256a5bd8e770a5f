// Package registry resolves the service segment of an inbound path to a backend base URL.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"storefront-gateway/internal/config"
)

const (
	defaultBaseURL = "http://localhost"
	portSuffix     = "_API_PORT"
	baseURLSuffix  = "_API_BASE_URL"
)

// ErrUnknownService is returned when a segment is not in the alias table and
// guessing is disabled.
var ErrUnknownService = errors.New("unknown service")

// ConfigError reports a service whose port variable has no usable value.
type ConfigError struct {
	Service  string // segment as requested
	Variable string // variable that would have held the port
	Invalid  string // rejected value; empty when the variable is unset
}

func (e *ConfigError) Error() string {
	if e.Invalid != "" {
		return fmt.Sprintf("Service %s not configured (invalid %s=%q)", e.Service, e.Variable, e.Invalid)
	}
	return fmt.Sprintf("Service %s not configured (missing %s)", e.Service, e.Variable)
}

// Environment is a snapshot of the process environment in os.Environ form.
type Environment []string

// Target is a resolved backend for one request.
type Target struct {
	Service   string // segment as requested
	Canonical string // e.g. ORDER
	Variable  string // e.g. NEXT_PUBLIC_ORDER_API_PORT
	BaseURL   string // scheme://host:port
	APIRoot   string // BaseURL plus the api version segment
	Guessed   bool   // true when resolved through the uppercase fallback
}

// URL joins the target's API root with the forwarded remainder and raw query.
func (t Target) URL(remainder, rawQuery string) string {
	u := t.APIRoot + "/" + remainder
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// ServiceStatus describes one canonical service for the status endpoint.
type ServiceStatus struct {
	Canonical  string   `json:"service"`
	Aliases    []string `json:"aliases"`
	Variable   string   `json:"variable"`
	Configured bool     `json:"configured"`
}

// Registry maps service segments to backends. It is built once at startup and
// is read-only afterwards.
type Registry struct {
	aliases      map[string]string
	ports        map[string]string // canonical -> port
	invalid      map[string]string // canonical -> rejected environment value
	prefix       string
	baseURL      string
	apiVersion   string
	allowGuessed bool
	logger       *slog.Logger
}

// New builds a Registry from the gateway config and an environment snapshot.
// Ports listed in [gateway.ports] take precedence over the environment.
func New(cfg *config.Config, env Environment, logger *slog.Logger) (*Registry, error) {
	gw := cfg.Gateway
	r := &Registry{
		aliases:      make(map[string]string, len(config.DefaultAliases)+len(gw.Aliases)),
		ports:        make(map[string]string),
		invalid:      make(map[string]string),
		prefix:       gw.Prefix(),
		apiVersion:   strings.Trim(gw.APIVersion, "/"),
		allowGuessed: gw.AllowGuessed(),
		logger:       logger.With("component", "registry"),
	}
	for alias, canonical := range config.DefaultAliases {
		r.aliases[alias] = canonical
	}
	for alias, canonical := range gw.Aliases {
		r.aliases[alias] = canonical
	}

	vars := parseEnvironment(env)

	r.baseURL = gw.BaseURL
	if r.baseURL == "" {
		r.baseURL = vars[r.variable("", baseURLSuffix)]
	}
	if r.baseURL == "" {
		r.baseURL = defaultBaseURL
	}
	if err := config.ValidateBaseURL(r.baseURL); err != nil {
		return nil, fmt.Errorf("registry: base url: %w", err)
	}
	r.baseURL = strings.TrimSuffix(r.baseURL, "/")

	head := r.variable("", "")
	for key, val := range vars {
		if val == "" || len(key) <= len(head)+len(portSuffix) {
			continue
		}
		if !strings.HasPrefix(key, head) || !strings.HasSuffix(key, portSuffix) {
			continue
		}
		r.ports[key[len(head):len(key)-len(portSuffix)]] = val
	}
	// A bad environment value only disables its own service.
	for canonical, port := range r.ports {
		if !validPort(port) {
			r.logger.Warn("ignoring invalid backend port",
				"variable", r.variable(canonical, portSuffix),
				"value", port,
			)
			r.invalid[canonical] = port
			delete(r.ports, canonical)
		}
	}

	for canonical, port := range gw.Ports {
		if !validPort(port) {
			return nil, fmt.Errorf("registry: gateway.ports.%s must be a port number 1-65535; got %q", canonical, port)
		}
		r.ports[canonical] = port
		delete(r.invalid, canonical)
	}

	return r, nil
}

// Resolve maps a service segment to its backend.
//
// Known aliases resolve to their canonical service. Unknown segments fall back
// to their uppercased form when guessing is enabled; that branch is logged so
// operators can tell configured targets from guessed ones. A service without a
// port yields a *ConfigError naming the missing variable.
func (r *Registry) Resolve(service string) (Target, error) {
	canonical, known := r.aliases[service]
	guessed := false
	if !known {
		if !r.allowGuessed || service == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
		}
		canonical = strings.ToUpper(service)
		guessed = true
	}

	variable := r.variable(canonical, portSuffix)
	if guessed {
		r.logger.Warn("service not in alias table; guessing from segment",
			"service", service,
			"variable", variable,
		)
	}

	port, ok := r.ports[canonical]
	if !ok {
		return Target{}, &ConfigError{Service: service, Variable: variable, Invalid: r.invalid[canonical]}
	}

	base := r.baseURL + ":" + port
	root := base
	if r.apiVersion != "" {
		root += "/" + r.apiVersion
	}

	return Target{
		Service:   service,
		Canonical: canonical,
		Variable:  variable,
		BaseURL:   base,
		APIRoot:   root,
		Guessed:   guessed,
	}, nil
}

// Known reports whether a segment is in the alias table.
func (r *Registry) Known(service string) bool {
	_, ok := r.aliases[service]
	return ok
}

// BaseURL returns the backend base URL shared by all services.
func (r *Registry) BaseURL() string {
	return r.baseURL
}

// APIVersion returns the path segment every backend call is rooted under.
func (r *Registry) APIVersion() string {
	return r.apiVersion
}

// Services lists every canonical service reachable through the alias table,
// plus any extra service that has a port configured, sorted by name.
func (r *Registry) Services() []ServiceStatus {
	byCanonical := make(map[string][]string)
	for alias, canonical := range r.aliases {
		byCanonical[canonical] = append(byCanonical[canonical], alias)
	}
	for canonical := range r.ports {
		if _, ok := byCanonical[canonical]; !ok {
			byCanonical[canonical] = []string{}
		}
	}

	out := make([]ServiceStatus, 0, len(byCanonical))
	for canonical, aliases := range byCanonical {
		sort.Strings(aliases)
		_, configured := r.ports[canonical]
		out = append(out, ServiceStatus{
			Canonical:  canonical,
			Aliases:    aliases,
			Variable:   r.variable(canonical, portSuffix),
			Configured: configured,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// variable builds <PREFIX>_<NAME><suffix>, dropping empty parts.
// variable("", "") yields the bare prefix with its trailing underscore.
func (r *Registry) variable(name, suffix string) string {
	var b strings.Builder
	if r.prefix != "" {
		b.WriteString(r.prefix)
		b.WriteByte('_')
	}
	b.WriteString(name)
	if suffix != "" {
		if name == "" {
			suffix = strings.TrimPrefix(suffix, "_")
		}
		b.WriteString(suffix)
	}
	return b.String()
}

// parseEnvironment turns KEY=VALUE pairs into a map; malformed entries are skipped.
func parseEnvironment(env Environment) map[string]string {
	vars := make(map[string]string, len(env))
	for _, kv := range env {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = val
	}
	return vars
}

func validPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
