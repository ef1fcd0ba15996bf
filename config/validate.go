package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"deedescrow/crypto"
	"deedescrow/native/escrow"
)

// MinJWTSecretLength is the shortest HMAC secret accepted outside dev.
var MinJWTSecretLength = 32

// Validate reports every configuration problem found.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("listen address: %w", err))
	}
	switch c.Storage.Backend {
	case "memory":
	case "leveldb", "bolt":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage: path required for %s", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown backend %q", c.Storage.Backend))
	}
	if _, err := c.EscrowRoles(); err != nil {
		errs = append(errs, err)
	}
	secret := strings.TrimSpace(c.Auth.JWTSecret)
	switch {
	case secret == "":
		errs = append(errs, fmt.Errorf("auth: jwt secret required"))
	case c.Environment != "dev" && len(secret) < MinJWTSecretLength:
		errs = append(errs, fmt.Errorf("auth: jwt secret must be at least %d characters", MinJWTSecretLength))
	}
	if c.Auth.ClockSkewSeconds < 0 || c.Auth.TokenTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("auth: durations must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate limit: values must not be negative"))
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		proxy = strings.TrimSpace(proxy)
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			errs = append(errs, fmt.Errorf("rate limit: invalid trusted proxy %q", proxy))
		}
	}
	if dsn := strings.TrimSpace(c.Audit.DSN); dsn != "" && !strings.HasPrefix(dsn, "file:") &&
		!strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		errs = append(errs, fmt.Errorf("audit: dsn must start with file:, postgres:// or postgresql://"))
	}
	if endpoint := strings.TrimSpace(c.Telemetry.Endpoint); endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: endpoint: %w", err))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// EscrowRoles decodes the configured role identities.
func (c *Config) EscrowRoles() (escrow.Roles, error) {
	var roles escrow.Roles
	fields := []struct {
		name  string
		value string
		dst   *[20]byte
	}{
		{"seller", c.Roles.Seller, &roles.Seller},
		{"inspector", c.Roles.Inspector, &roles.Inspector},
		{"lender", c.Roles.Lender, &roles.Lender},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return escrow.Roles{}, fmt.Errorf("roles: %s identity required", field.name)
		}
		addr, err := crypto.ParseIdentity(field.value)
		if err != nil {
			return escrow.Roles{}, fmt.Errorf("roles: %s: %w", field.name, err)
		}
		*field.dst = addr
	}
	return roles, nil
}
