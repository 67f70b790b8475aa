package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/pkg/constants"
)

func validConfig() config.Config {
	return config.Config{
		Identity: config.IdentityConfig{
			RSAKeyBits:          2048,
			CertificateValidity: 365 * 24 * time.Hour,
		},
		KDF:        config.KDFConfig{Iterations: constants.DefaultPBKDF2Iterations},
		Revocation: config.RevocationConfig{Backend: "file", Path: "revoked.json"},
		Keystore:   config.KeystoreConfig{Dir: "keystore"},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*config.Config){
		"iterations below minimum": func(c *config.Config) { c.KDF.Iterations = 9999 },
		"weak rsa key":             func(c *config.Config) { c.Identity.RSAKeyBits = 1024 },
		"zero validity":            func(c *config.Config) { c.Identity.CertificateValidity = 0 },
		"unknown backend":          func(c *config.Config) { c.Revocation.Backend = "etcd" },
		"file backend without path": func(c *config.Config) {
			c.Revocation.Backend = "file"
			c.Revocation.Path = ""
		},
		"postgres backend without dsn": func(c *config.Config) {
			c.Revocation.Backend = "postgres"
		},
		"redis backend without addr": func(c *config.Config) {
			c.Revocation.Backend = "redis"
		},
		"feed enabled without brokers": func(c *config.Config) {
			c.Feed.Enabled = true
			c.Feed.Topic = "revocations"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateSQLiteBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Revocation.Backend = "sqlite"
	cfg.Revocation.Path = "revoked.db"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultRSAKeyBits, cfg.Identity.RSAKeyBits)
	assert.Equal(t, constants.DefaultCertificateValidity, cfg.Identity.CertificateValidity)
	assert.Equal(t, constants.DefaultPBKDF2Iterations, cfg.KDF.Iterations)
	assert.Equal(t, "file", cfg.Revocation.Backend)
	assert.True(t, cfg.Revocation.WatchFile)
	assert.Equal(t, "keystore", cfg.Keystore.Dir)
	assert.False(t, cfg.Feed.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
identity:
  rsa_key_bits: 4096
kdf:
  iterations: 200000
revocation:
  backend: sqlite
  path: /var/lib/keyfold/revoked.db
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keyfold.yaml"), content, 0o600))

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Identity.RSAKeyBits)
	assert.Equal(t, 200000, cfg.KDF.Iterations)
	assert.Equal(t, "sqlite", cfg.Revocation.Backend)
	assert.Equal(t, "/var/lib/keyfold/revoked.db", cfg.Revocation.Path)
	// Unset keys keep their defaults.
	assert.Equal(t, constants.DefaultCertificateValidity, cfg.Identity.CertificateValidity)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
kdf:
  iterations: 1
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keyfold.yaml"), content, 0o600))

	_, err := config.LoadConfig(dir)
	require.Error(t, err)
}
