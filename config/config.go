package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"deedescrow/crypto"
)

const (
	EnvEnvironment = "DEED_ENV"
	EnvJWTSecret   = "DEED_JWT_SECRET"
)

// keystoreScrypt is the cost used for the generated role keystores.
var keystoreScrypt = crypto.StandardScrypt

type Config struct {
	ListenAddress string    `toml:"ListenAddress" yaml:"listen_address"`
	Environment   string    `toml:"Environment" yaml:"environment"`
	DataDir       string    `toml:"DataDir" yaml:"data_dir"`
	Storage       Storage   `toml:"storage" yaml:"storage"`
	Roles         Roles     `toml:"roles" yaml:"roles"`
	Auth          Auth      `toml:"auth" yaml:"auth"`
	RateLimit     RateLimit `toml:"rate_limit" yaml:"rate_limit"`
	Audit         Audit     `toml:"audit" yaml:"audit"`
	Telemetry     Telemetry `toml:"telemetry" yaml:"telemetry"`
	Logging       Logging   `toml:"logging" yaml:"logging"`
}

// Load loads the configuration from the given path. TOML and YAML are selected
// by file extension. A missing file is replaced with a generated development
// configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if err := decode(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decode(path string, cfg *Config) error {
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode yaml %s: %w", path, err)
		}
		return nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode toml %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./deed-data"
	}
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		cfg.Storage.Backend = "leveldb"
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "memory" {
		name := "state"
		if cfg.Storage.Backend == "bolt" {
			name = "state.bolt"
		}
		cfg.Storage.Path = filepath.Join(cfg.DataDir, name)
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "deedescrow"
	}
	if cfg.Auth.ClockSkewSeconds == 0 {
		cfg.Auth.ClockSkewSeconds = 30
	}
	if cfg.Auth.TokenTTLSeconds == 0 {
		cfg.Auth.TokenTTLSeconds = 3600
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB == 0 {
			cfg.Logging.MaxSizeMB = 100
		}
		if cfg.Logging.MaxBackups == 0 {
			cfg.Logging.MaxBackups = 5
		}
		if cfg.Logging.MaxAgeDays == 0 {
			cfg.Logging.MaxAgeDays = 28
		}
	}
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		cfg.Environment = env
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}

// createDefault creates and saves a development configuration. Each escrow
// role gets a freshly generated key stored next to the config file.
func createDefault(path string) (*Config, error) {
	dir := filepath.Dir(path)
	identities := make(map[string]string, 3)
	for _, role := range []string{"seller", "inspector", "lender"} {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		addr, err := crypto.SaveToKeystoreWithParams(filepath.Join(dir, "keys", role+".keystore"), key, "", keystoreScrypt)
		if err != nil {
			return nil, err
		}
		identities[role] = addr.String()
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: ":8080",
		Environment:   "dev",
		DataDir:       filepath.Join(dir, "deed-data"),
		Storage:       Storage{Backend: "leveldb"},
		Roles: Roles{
			Seller:    identities["seller"],
			Inspector: identities["inspector"],
			Lender:    identities["lender"],
		},
		Auth:      Auth{JWTSecret: hex.EncodeToString(secret), Issuer: "deedescrow", AllowAnonymousRPC: true},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Audit:     Audit{DSN: "file:" + filepath.Join(dir, "deed-data", "audit.db")},
		Logging:   Logging{Level: "info"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
