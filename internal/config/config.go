// Package config loads application configuration from environment
// variables. All variables are prefixed with FIDELGATE_; a .env file is
// honored in development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dcavalli/fidelgate/internal/util"
)

// StoreBackend selects the persistence backing for security state.
type StoreBackend string

const (
	BackendMemory StoreBackend = "memory"
	BackendBBolt  StoreBackend = "bbolt"
	BackendRedis  StoreBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreBackend.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	switch v := StoreBackend(text); v {
	case BackendMemory, BackendBBolt, BackendRedis:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid store backend: %q (valid options: memory, bbolt, redis)", text)
	}
}

// StoreConfig selects and parameterizes the store backing.
type StoreConfig struct {
	Backend StoreBackend `env:"BACKEND" envDefault:"bbolt"`

	// Path is the bbolt database file (backend=bbolt).
	Path string `env:"PATH" envDefault:"./data/fidelgate.db"`

	// Redis connection settings (backend=redis).
	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port    int    `env:"PORT" envDefault:"8443"`
	TLSCert string `env:"TLS_CERT"`
	TLSKey  string `env:"TLS_KEY"`
}

// AdminConfig seeds the admin credentials record on first run.
type AdminConfig struct {
	Email    string `env:"EMAIL"    envDefault:"admin@fidelgate.local"`
	Password string `env:"PASSWORD"`
}

// Config is the top-level application configuration.
type Config struct {
	// EncryptionKey is the hex-encoded 32-byte application key used for
	// encryption and token signing. Required: the key is secret material
	// and must be injected at runtime, never hardcoded.
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// SessionTTL is the sliding session window.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	// HardenedHashing switches new password digests from legacy unsalted
	// SHA-256 to argon2id. Verification accepts both either way.
	HardenedHashing bool `env:"HARDENED_HASHING" envDefault:"true"`

	// EventCap bounds the persisted security-event history.
	EventCap int `env:"EVENT_CAP" envDefault:"500"`

	Store StoreConfig `envPrefix:"STORE_"`
	HTTP  HTTPConfig  `envPrefix:"HTTP_"`
	Admin AdminConfig `envPrefix:"ADMIN_"`
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FIDELGATE_"}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.Sanitize()
	if _, err := cfg.Key(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sanitize applies guardrails to values loaded from the environment.
func (c *Config) Sanitize() {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		c.HTTP.Port = 8443
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.EventCap <= 0 {
		c.EventCap = 500
	}
}

// Key decodes the application encryption key.
func (c *Config) Key() ([]byte, error) {
	key, err := util.HexDecode(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes (%d hex chars), got %d bytes",
			util.AESKeySize, util.AESKeySize*2, len(key))
	}
	return key, nil
}
