// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/storefront-gateway/config.toml",
	"configs/config.toml",
}

// Routes owned by the gateway itself; the mount path and metrics path must not shadow them.
const (
	HealthzPath = "/healthz"
	StatusPath  = "/gateway/status"
)

// canonicalPattern restricts canonical service identifiers to env-var-safe characters.
var canonicalPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// DefaultAliases maps the path segments the storefront uses to canonical backend services.
var DefaultAliases = map[string]string{
	"auth":      "AUTH",
	"profile":   "AUTH",
	"login":     "AUTH",
	"register":  "AUTH",
	"product":   "PRODUCT",
	"products":  "PRODUCT",
	"admin":     "PRODUCT",
	"inventory": "INVENTORY",
	"order":     "ORDER",
	"orders":    "ORDER",
	"payment":   "PAYMENT",
	"payments":  "PAYMENT",
	"review":    "REVIEW",
	"reviews":   "REVIEW",
	"favorite":  "FAVORITE",
	"favorites": "FAVORITE",
	"ai":        "AI",
	"cart":      "CART",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	EnvPrefix string `kong:"help='Prefix of backend port variables (overrides config).',env='GATEWAY_ENV_PREFIX'"`
	BaseURL   string `kong:"help='Backend base URL shared by all services (overrides config).',env='GATEWAY_BASE_URL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// GatewayConfig describes how inbound paths map onto backend services.
type GatewayConfig struct {
	MountPath  string            `toml:"mount_path"`
	EnvPrefix  *string           `toml:"env_prefix"` // nil means "use default"; "" is a valid prefix
	BaseURL    string            `toml:"base_url"`
	APIVersion string            `toml:"api_version"`
	CookieName string            `toml:"cookie_name"`
	Guessing   *bool             `toml:"allow_guessed"`
	StrictJSON bool              `toml:"strict_json"`
	Aliases    map[string]string `toml:"aliases"`
	Ports      map[string]string `toml:"ports"`
}

// UpstreamConfig holds backend connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/storefront-gateway/config.toml then configs/config.toml. If neither
// exists the defaults are used, since every backend can be described by the
// environment alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.EnvPrefix != "" {
		prefix := cli.EnvPrefix
		c.Gateway.EnvPrefix = &prefix
	}
	if cli.BaseURL != "" {
		c.Gateway.BaseURL = cli.BaseURL
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Backend base URL, when given explicitly.
	if c.Gateway.BaseURL != "" {
		if err := ValidateBaseURL(c.Gateway.BaseURL); err != nil {
			return fmt.Errorf("gateway.base_url: %w", err)
		}
	}

	mount := c.Gateway.MountPath
	if mount[0] != '/' || mount == "/" || strings.HasSuffix(mount, "/") {
		return fmt.Errorf("gateway.mount_path must start with '/', not end with '/', and not be the root; got %q", mount)
	}
	for _, reserved := range []string{HealthzPath, StatusPath} {
		if overlaps(mount, reserved) {
			return fmt.Errorf("gateway.mount_path %q conflicts with reserved route %q", mount, reserved)
		}
	}
	if strings.ContainsAny(c.Gateway.CookieName, " ;=") {
		return fmt.Errorf("gateway.cookie_name contains invalid characters; got %q", c.Gateway.CookieName)
	}

	for alias, canonical := range c.Gateway.Aliases {
		if alias == "" || strings.Contains(alias, "/") {
			return fmt.Errorf("gateway.aliases key %q must be a single path segment", alias)
		}
		if !canonicalPattern.MatchString(canonical) {
			return fmt.Errorf("gateway.aliases.%s must be an uppercase identifier; got %q", alias, canonical)
		}
	}
	for canonical, port := range c.Gateway.Ports {
		if !canonicalPattern.MatchString(canonical) {
			return fmt.Errorf("gateway.ports key %q must be an uppercase identifier", canonical)
		}
		if port == "" {
			return fmt.Errorf("gateway.ports.%s must not be empty", canonical)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{mount, HealthzPath, StatusPath} {
			if overlaps(p, reserved) {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// overlaps reports whether either path is equal to or nested under the other.
func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// ValidateBaseURL checks that a backend base URL is an absolute http(s) URL
// without a path, query, or port (the port is appended per service).
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https; got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host; got %q", raw)
	}
	if u.Port() != "" {
		return fmt.Errorf("must not include a port, ports are configured per service; got %q", raw)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		return fmt.Errorf("must not include a path or query; got %q", raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Gateway.MountPath == "" {
		c.Gateway.MountPath = "/api"
	}
	if c.Gateway.EnvPrefix == nil {
		prefix := "NEXT_PUBLIC"
		c.Gateway.EnvPrefix = &prefix
	}
	if c.Gateway.APIVersion == "" {
		c.Gateway.APIVersion = "api/v1"
	}
	c.Gateway.APIVersion = strings.Trim(c.Gateway.APIVersion, "/")
	if c.Gateway.CookieName == "" {
		c.Gateway.CookieName = "auth_token"
	}
	if c.Gateway.Guessing == nil {
		allow := true
		c.Gateway.Guessing = &allow
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Prefix returns the configured environment variable prefix.
func (g *GatewayConfig) Prefix() string {
	if g.EnvPrefix == nil {
		return ""
	}
	return *g.EnvPrefix
}

// AllowGuessed reports whether unknown service names may fall back to their uppercased form.
func (g *GatewayConfig) AllowGuessed() bool {
	return g.Guessing == nil || *g.Guessing
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
