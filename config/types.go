package config

// Storage selects the state database backend.
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// Roles lists the bech32 identities of the fixed escrow participants.
type Roles struct {
	Seller    string `toml:"Seller" yaml:"seller"`
	Inspector string `toml:"Inspector" yaml:"inspector"`
	Lender    string `toml:"Lender" yaml:"lender"`
}

// Auth configures bearer-token caller identity.
type Auth struct {
	JWTSecret         string `toml:"JWTSecret" yaml:"jwt_secret"`
	Issuer            string `toml:"Issuer" yaml:"issuer"`
	Audience          string `toml:"Audience" yaml:"audience"`
	ClockSkewSeconds  int    `toml:"ClockSkewSeconds" yaml:"clock_skew_seconds"`
	TokenTTLSeconds   int    `toml:"TokenTTLSeconds" yaml:"token_ttl_seconds"`
	AllowAnonymousRPC bool   `toml:"AllowAnonymousRPC" yaml:"allow_anonymous_rpc"`
}

// RateLimit bounds requests per caller identity (or per remote address for
// anonymous callers).
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
	// TrustedProxies are addresses or CIDRs allowed to set X-Real-IP.
	TrustedProxies []string `toml:"TrustedProxies" yaml:"trusted_proxies"`
}

// Audit configures the audit log database. An empty DSN disables it.
type Audit struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	// Headers is a comma-separated key=value list sent with every export.
	Headers string `toml:"Headers" yaml:"headers"`
	Metrics bool   `toml:"Metrics" yaml:"metrics"`
	Traces  bool   `toml:"Traces" yaml:"traces"`
}

// Logging configures log level and optional rotating file output.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}
