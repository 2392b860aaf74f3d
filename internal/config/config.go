// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package config loads tokenward configuration from a YAML file, the
// environment and command-line flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/store"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore, e.g. TOKENWARD_TOKENS__ACCESS_TTL.
const EnvPrefix = "TOKENWARD_"

// MinRefreshSecretLen is the minimum length of the refresh token HMAC secret.
const MinRefreshSecretLen = auth.MinTokenSecretBytes

// Config is the complete tokenward configuration.
type Config struct {
	Database      DatabaseConfig      `koanf:"database"`
	Tokens        TokensConfig        `koanf:"tokens"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
	GRPC          GRPCConfig          `koanf:"grpc"`
	Sweeper       SweeperConfig       `koanf:"sweeper"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string        `koanf:"url" jsonschema:"description=PostgreSQL connection URL"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" jsonschema:"type=string,pattern=^([0-9.]+(ns|us|ms|s|m|h))+$,description=Timeout of a single connection attempt"`
	ConnectAttempts uint64        `koanf:"connect_attempts" jsonschema:"minimum=1,description=Connection attempts before giving up"`
	AutoMigrate     bool          `koanf:"auto_migrate" jsonschema:"description=Apply pending migrations on startup"`
}

// TokensConfig configures token issuance and account policy.
type TokensConfig struct {
	Issuer            string        `koanf:"issuer" jsonschema:"minLength=1"`
	Audience          string        `koanf:"audience" jsonschema:"minLength=1"`
	AccessTTL         time.Duration `koanf:"access_ttl" jsonschema:"type=string,pattern=^([0-9.]+(ns|us|ms|s|m|h))+$"`
	RefreshTTL        time.Duration `koanf:"refresh_ttl" jsonschema:"type=string,pattern=^([0-9.]+(ns|us|ms|s|m|h))+$"`
	ResetTTL          time.Duration `koanf:"reset_ttl" jsonschema:"type=string,pattern=^([0-9.]+(ns|us|ms|s|m|h))+$"`
	ClockSkew         time.Duration `koanf:"clock_skew" jsonschema:"type=string,pattern=^([0-9.]+(ns|us|ms|s|m|h))+$"`
	SigningKeyFile    string        `koanf:"signing_key_file" jsonschema:"description=PKCS#8 PEM Ed25519 private key"`
	VerifyKeyFile     string        `koanf:"verify_key_file" jsonschema:"description=PKIX PEM Ed25519 public key"`
	RefreshSecret     string        `koanf:"refresh_secret" jsonschema:"description=HMAC secret for refresh token hashes"`
	RefreshSecretFile string        `koanf:"refresh_secret_file" jsonschema:"description=File holding the refresh token HMAC secret"`
	SingleSession     bool          `koanf:"single_session" jsonschema:"description=Revoke existing refresh tokens on login"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
}

// ObservabilityConfig configures the metrics and health endpoint.
type ObservabilityConfig struct {
	Addr string `koanf:"addr" jsonschema:"description=Listen address; empty disables the server"`
}

// GRPCConfig configures the gRPC listener. TLS is enabled when both
// certificate files are set.
type GRPCConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file" jsonschema:"description=PEM server certificate"`
	TLSKeyFile  string `koanf:"tls_key_file" jsonschema:"description=PEM server private key"`
}

// TLSEnabled reports whether the gRPC listener serves TLS.
func (g GRPCConfig) TLSEnabled() bool {
	return g.TLSCertFile != "" && g.TLSKeyFile != ""
}

// SweeperConfig configures the expired token sweeper.
type SweeperConfig struct {
	Interval time.Duration `koanf:"interval" jsonschema:"type=string,pattern=^([0-9.]+(ns|us|ms|s|m|h))+$"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			ConnectTimeout:  store.DefaultConnectTimeout,
			ConnectAttempts: store.DefaultConnectAttempts,
		},
		Tokens: TokensConfig{
			Issuer:        "tokenward",
			Audience:      "tokenward",
			AccessTTL:     auth.DefaultAccessTokenTTL,
			RefreshTTL:    auth.DefaultRefreshTokenTTL,
			ResetTTL:      auth.DefaultResetTokenTTL,
			ClockSkew:     auth.DefaultClockSkew,
			SingleSession: true,
		},
		Log:           LogConfig{Format: "json"},
		Observability: ObservabilityConfig{Addr: "127.0.0.1:9100"},
		GRPC:          GRPCConfig{Addr: "127.0.0.1:9000"},
		Sweeper:       SweeperConfig{Interval: auth.DefaultSweepInterval},
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"database-url":     "database.url",
	"auto-migrate":     "database.auto_migrate",
	"issuer":           "tokens.issuer",
	"audience":         "tokens.audience",
	"access-ttl":       "tokens.access_ttl",
	"refresh-ttl":      "tokens.refresh_ttl",
	"signing-key":      "tokens.signing_key_file",
	"verify-key":       "tokens.verify_key_file",
	"refresh-secret":   "tokens.refresh_secret_file",
	"single-session":   "tokens.single_session",
	"log-format":       "log.format",
	"metrics-addr":     "observability.addr",
	"grpc-addr":        "grpc.addr",
	"grpc-tls-cert":    "grpc.tls_cert_file",
	"grpc-tls-key":     "grpc.tls_key_file",
	"sweeper-interval": "sweeper.interval",
}

// Load builds the configuration from, in increasing precedence, the
// defaults, the YAML file at path, TOKENWARD_ environment variables and the
// flags in fs that were set explicitly. path and fs may be empty.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := ValidateFile(path); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}

	if cfg.Tokens.RefreshSecretFile != "" {
		secret, err := os.ReadFile(cfg.Tokens.RefreshSecretFile)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", cfg.Tokens.RefreshSecretFile).
				Wrap(err)
		}
		cfg.Tokens.RefreshSecret = strings.TrimSpace(string(secret))
	}

	return &cfg, nil
}

// envKey turns TOKENWARD_TOKENS__ACCESS_TTL into tokens.access_ttl.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// Validate checks the settings needed to issue tokens.
func (c *Config) Validate() error {
	t := c.Tokens
	if t.Issuer == "" || t.Audience == "" {
		return oops.Code("CONFIG_INVALID").Errorf("tokens.issuer and tokens.audience are required")
	}
	for name, ttl := range map[string]time.Duration{
		"tokens.access_ttl":  t.AccessTTL,
		"tokens.refresh_ttl": t.RefreshTTL,
		"tokens.reset_ttl":   t.ResetTTL,
		"sweeper.interval":   c.Sweeper.Interval,
	} {
		if ttl <= 0 {
			return oops.Code("CONFIG_INVALID").With("key", name).Errorf("%s must be positive, got %s", name, ttl)
		}
	}
	if t.ClockSkew < 0 {
		return oops.Code("CONFIG_INVALID").With("key", "tokens.clock_skew").Errorf("tokens.clock_skew cannot be negative")
	}
	if t.SigningKeyFile == "" || t.VerifyKeyFile == "" {
		return oops.Code("CONFIG_INVALID").Errorf("tokens.signing_key_file and tokens.verify_key_file are required")
	}
	if len(t.RefreshSecret) < MinRefreshSecretLen {
		return oops.Code("CONFIG_INVALID").
			With("key", "tokens.refresh_secret").
			Errorf("refresh secret must be at least %d bytes", MinRefreshSecretLen)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("key", "log.format").Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	if (c.GRPC.TLSCertFile == "") != (c.GRPC.TLSKeyFile == "") {
		return oops.Code("CONFIG_INVALID").With("key", "grpc.tls_cert_file").
			Errorf("grpc.tls_cert_file and grpc.tls_key_file must be set together")
	}
	if c.Database.ConnectAttempts == 0 {
		return oops.Code("CONFIG_INVALID").With("key", "database.connect_attempts").Errorf("database.connect_attempts must be at least 1")
	}
	return nil
}

// JWT returns the access token settings.
func (t TokensConfig) JWT() auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:    t.Issuer,
		Audience:  t.Audience,
		TTL:       t.AccessTTL,
		ClockSkew: t.ClockSkew,
	}
}

// Connect returns the store connection settings.
func (d DatabaseConfig) Connect() store.ConnectConfig {
	return store.ConnectConfig{
		URL:      d.URL,
		Attempts: d.ConnectAttempts,
		Timeout:  d.ConnectTimeout,
	}
}
