package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	PII       PIIConfig       `mapstructure:"pii"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Fees      FeeConfig       `mapstructure:"fees"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Registry  ServiceConfig   `mapstructure:"registry"`
	Extractor ServiceConfig   `mapstructure:"extractor"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// InMemory reports whether the process runs on the in-memory store.
func (d DatabaseConfig) InMemory() bool {
	return d.Driver == "memory"
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// PIIConfig carries the vault keys, both 32-byte hex strings.
type PIIConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	BlindIndexKey string `mapstructure:"blind_index_key"`
}

type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	PayoutAccount string        `mapstructure:"payout_account"`
	Currency      string        `mapstructure:"currency"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// FeeConfig is the platform fee deducted from webhook funding: flat (minor units) + bps of gross.
type FeeConfig struct {
	PlatformFlat int64 `mapstructure:"platform_flat"`
	PlatformBPS  int64 `mapstructure:"platform_bps"`
}

type IdentityConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Google  GoogleConfig  `mapstructure:"google"`
	OIDC    OIDCConfig    `mapstructure:"oidc"`
}

type GoogleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Audience string `mapstructure:"audience"`
}

type OIDCConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	JWKSURL  string        `mapstructure:"jwks_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ServiceConfig describes a plain HTTP collaborator.
type ServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from a .env file, a YAML file and environment variables.
// Environment variables override file values. Prefix: INVFIN_.
// Nested keys use underscore: INVFIN_DATABASE_HOST, INVFIN_GATEWAY_KEY_SECRET, etc.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "invoice_financing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "invoice-financing")
	v.SetDefault("pii.encryption_key", "")
	v.SetDefault("pii.blind_index_key", "")
	v.SetDefault("gateway.base_url", "https://api.razorpay.com")
	v.SetDefault("gateway.key_id", "")
	v.SetDefault("gateway.key_secret", "")
	v.SetDefault("gateway.webhook_secret", "")
	v.SetDefault("gateway.payout_account", "")
	v.SetDefault("gateway.currency", "INR")
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("fees.platform_flat", 100000)
	v.SetDefault("fees.platform_bps", 0)
	v.SetDefault("identity.timeout", "5s")
	v.SetDefault("identity.google.enabled", false)
	v.SetDefault("identity.google.audience", "")
	v.SetDefault("identity.oidc.enabled", false)
	v.SetDefault("identity.oidc.issuer", "")
	v.SetDefault("identity.oidc.audience", "")
	v.SetDefault("identity.oidc.jwks_url", "")
	v.SetDefault("identity.oidc.cache_ttl", "15m")
	v.SetDefault("registry.base_url", "")
	v.SetDefault("registry.api_key", "")
	v.SetDefault("registry.timeout", "5s")
	v.SetDefault("extractor.base_url", "")
	v.SetDefault("extractor.api_key", "")
	v.SetDefault("extractor.timeout", "30s")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("INVFIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing file is fine, env vars can carry everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if err := checkHexKey("pii.encryption_key", c.PII.EncryptionKey); err != nil {
		errs = append(errs, err)
	}
	if err := checkHexKey("pii.blind_index_key", c.PII.BlindIndexKey); err != nil {
		errs = append(errs, err)
	}
	if c.PII.EncryptionKey != "" && strings.EqualFold(c.PII.EncryptionKey, c.PII.BlindIndexKey) {
		errs = append(errs, errors.New("pii.blind_index_key must differ from pii.encryption_key"))
	}
	if c.Gateway.KeySecret == "" {
		errs = append(errs, errors.New("gateway.key_secret is required"))
	}
	if c.Fees.PlatformFlat < 0 || c.Fees.PlatformBPS < 0 || c.Fees.PlatformBPS > 10000 {
		errs = append(errs, errors.New("fees must be non-negative and platform_bps at most 10000"))
	}
	if c.Identity.OIDC.Enabled && c.Identity.OIDC.JWKSURL == "" {
		errs = append(errs, errors.New("identity.oidc.jwks_url is required when oidc is enabled"))
	}
	if !c.Database.InMemory() && c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	return errors.Join(errs...)
}

func checkHexKey(name, key string) error {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%s must be 64 hex characters", name)
	}
	return nil
}
