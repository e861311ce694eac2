// Package config loads LyfeHub configuration from environment variables and
// the optional YAML keyring file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"lyfehub.db"`

	// Auth
	AuthMode      string        `envconfig:"AUTH_MODE" default:"api-key"` // "api-key" or "none"
	KeyringPath   string        `envconfig:"KEYRING_PATH"`                // YAML keyring file
	SessionSecret string        `envconfig:"SESSION_SECRET"`              // HS256 secret for session tokens
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	// HTTP
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	TLSCert        string `envconfig:"TLS_CERT"`
	TLSKey         string `envconfig:"TLS_KEY"`

	// Housekeeping
	RetentionInterval time.Duration `envconfig:"RETENTION_INTERVAL" default:"6h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LYFEHUB", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// SessionsEnabled returns true if session tokens can be minted.
func (c *Config) SessionsEnabled() bool {
	return c.SessionSecret != ""
}

// APIKey is one keyring entry: a bearer key bound to a user and role.
type APIKey struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Role   string `yaml:"role"` // admin | member | readonly
}

// Keyring is the parsed YAML keyring file.
type Keyring struct {
	Keys []APIKey `yaml:"keys"`
}

// LoadKeyring reads and parses the YAML keyring, expanding env vars in
// values so key material can live outside the file
// (e.g. `key: ${LYFEHUB_ADMIN_KEY}`).
func LoadKeyring(path string) (*Keyring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: read %s: %w", path, err)
	}
	return ParseKeyring(raw)
}

// ParseKeyring parses a YAML keyring from bytes (useful for testing).
func ParseKeyring(data []byte) (*Keyring, error) {
	expanded := expandEnvVars(string(data))

	var kr Keyring
	if err := yaml.Unmarshal([]byte(expanded), &kr); err != nil {
		return nil, fmt.Errorf("keyring: parse: %w", err)
	}

	for i, k := range kr.Keys {
		if k.Key == "" {
			return nil, fmt.Errorf("keyring: entry %d has an empty key", i)
		}
		if k.UserID == "" {
			return nil, fmt.Errorf("keyring: entry %d has no user_id", i)
		}
		switch k.Role {
		case "admin", "member", "readonly":
		case "":
			kr.Keys[i].Role = "member"
		default:
			return nil, fmt.Errorf("keyring: entry %d has unknown role %q", i, k.Role)
		}
	}
	return &kr, nil
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
