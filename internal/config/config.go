package config

import (
	"fmt"
	"time"

	"github.com/keyfold/keyfold/pkg/constants"
)

// Config holds the trust core's configuration.
type Config struct {
	Identity   IdentityConfig   `mapstructure:"identity"`
	KDF        KDFConfig        `mapstructure:"kdf"`
	Revocation RevocationConfig `mapstructure:"revocation"`
	Keystore   KeystoreConfig   `mapstructure:"keystore"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Log        LogConfig        `mapstructure:"log"`
}

// IdentityConfig controls key pair generation and certificate issuance.
type IdentityConfig struct {
	// RSAKeyBits is the modulus size of generated key pairs.
	RSAKeyBits int `mapstructure:"rsa_key_bits"`
	// CertificateValidity is the self-signed certificate validity window.
	CertificateValidity time.Duration `mapstructure:"certificate_validity"`
	// CertificateCacheSize bounds the issued-certificate LRU cache.
	CertificateCacheSize int `mapstructure:"certificate_cache_size"`
}

// KDFConfig controls password-to-key derivation for the KeyStore. The
// iteration count is deliberately configuration rather than a code constant so
// the sealing contract is testable and upgradable.
type KDFConfig struct {
	// Iterations is the PBKDF2-HMAC-SHA256 iteration count for new seals.
	// Records remember the count they were sealed with, so raising this does
	// not invalidate existing records.
	Iterations int `mapstructure:"iterations"`
}

// RevocationConfig selects and configures the revocation list backend.
type RevocationConfig struct {
	// Backend is one of "file", "sqlite", "postgres", "redis".
	Backend string `mapstructure:"backend"`
	// Path is the JSON list path for the file backend, or the sqlite database
	// path for the sqlite backend.
	Path string `mapstructure:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `mapstructure:"dsn"`
	// WatchFile enables fsnotify reloads of the file backend when another
	// process appends to the shared list.
	WatchFile bool `mapstructure:"watch_file"`
}

// KeystoreConfig controls sealed key record persistence.
type KeystoreConfig struct {
	// Dir is the directory holding one sealed record file per subject.
	Dir string `mapstructure:"dir"`
}

// RedisConfig configures the redis revocation backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// SetKey is the redis set holding revoked serials.
	SetKey string `mapstructure:"set_key"`
}

// FeedConfig configures the optional cross-installation revocation feed.
type FeedConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// GroupID is the consumer group shared by all instances of one
	// installation.
	GroupID string `mapstructure:"group_id"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks the configuration invariants that the crypto contracts
// depend on.
func (c *Config) Validate() error {
	if c.KDF.Iterations < constants.MinPBKDF2Iterations {
		return fmt.Errorf("kdf.iterations %d below minimum %d", c.KDF.Iterations, constants.MinPBKDF2Iterations)
	}
	if c.Identity.RSAKeyBits < 2048 {
		return fmt.Errorf("identity.rsa_key_bits %d below minimum 2048", c.Identity.RSAKeyBits)
	}
	if c.Identity.CertificateValidity <= 0 {
		return fmt.Errorf("identity.certificate_validity must be positive")
	}
	switch c.Revocation.Backend {
	case "file", "sqlite":
		if c.Revocation.Path == "" {
			return fmt.Errorf("revocation.path required for backend %q", c.Revocation.Backend)
		}
	case "postgres":
		if c.Revocation.DSN == "" {
			return fmt.Errorf("revocation.dsn required for backend postgres")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr required for backend redis")
		}
	default:
		return fmt.Errorf("unknown revocation backend %q", c.Revocation.Backend)
	}
	if c.Feed.Enabled {
		if len(c.Feed.Brokers) == 0 || c.Feed.Topic == "" {
			return fmt.Errorf("feed.brokers and feed.topic required when the feed is enabled")
		}
	}
	return nil
}
