package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/keyfold/keyfold/pkg/constants"
	"github.com/keyfold/keyfold/pkg/errors"
)

// LoadConfig loads configuration from an optional config file and KEYFOLD_*
// environment variables, applying defaults for everything not set.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("identity.rsa_key_bits", constants.DefaultRSAKeyBits)
	v.SetDefault("identity.certificate_validity", constants.DefaultCertificateValidity)
	v.SetDefault("identity.certificate_cache_size", 256)
	v.SetDefault("kdf.iterations", constants.DefaultPBKDF2Iterations)
	v.SetDefault("revocation.backend", "file")
	v.SetDefault("revocation.path", "revoked_certificates.json")
	v.SetDefault("revocation.watch_file", true)
	v.SetDefault("keystore.dir", "keystore")
	v.SetDefault("redis.set_key", "keyfold:revoked")
	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.group_id", "keyfold-revocation")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetConfigName("keyfold")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		v.AddConfigPath(".")
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.CodeInvalidArgument, "failed to read config file")
		}
	}

	v.SetEnvPrefix("KEYFOLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "invalid configuration")
	}
	return &cfg, nil
}
