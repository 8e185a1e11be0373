package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const insecureDevSecret = "insecure_dev_jwt_secret_change_me"

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling and env for environment variable binding.
type ServerConfig struct {
	Env       string `mapstructure:"ENV"` // "development" or "production"
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr, when set, switches rate-limit/lockout counters to a shared
	// redis store so multiple instances see the same windows.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	JWTSecretKey        string `mapstructure:"JWT_SECRET_KEY"`
	AccessTokenTTLMin   int    `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	SessionTTLDays      int    `mapstructure:"SESSION_TTL_DAYS"`
	BcryptCost          int    `mapstructure:"BCRYPT_COST"`
	LockoutThreshold    int    `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutMinutes      int    `mapstructure:"LOCKOUT_MINUTES"`
	KeepaliveExtendDays int    `mapstructure:"KEEPALIVE_EXTEND_THRESHOLD_DAYS"`
}

// IsProduction reports whether the server runs with production hardening
// (secure cookies, mandatory signing key).
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTokenTTL returns the configured access-token lifetime.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// SessionTTL returns the configured refresh-session lifetime. It is tuned
// for installed-app retention (weeks), not browser-tab retention.
func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLDays) * 24 * time.Hour
}

// KeepaliveExtendThreshold returns the remaining-life threshold under which
// a keepalive ping extends the session expiry.
func (c *ServerConfig) KeepaliveExtendThreshold() time.Duration {
	return time.Duration(c.KeepaliveExtendDays) * 24 * time.Hour
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/centsible/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENV", "development")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/centsible_dev")
	v.SetDefault("MONGO_DB_NAME", "centsible_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 15)
	v.SetDefault("SESSION_TTL_DAYS", 60)
	v.SetDefault("BCRYPT_COST", 0) // 0 = bcrypt.DefaultCost
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_MINUTES", 15)
	v.SetDefault("KEEPALIVE_EXTEND_THRESHOLD_DAYS", 30)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we run on env vars and defaults.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.validateSecret(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateSecret enforces the signing-key policy: production refuses to
// start without a real secret; development falls back to a well-known one.
func (c *ServerConfig) validateSecret() error {
	if c.JWTSecretKey == "" || c.JWTSecretKey == insecureDevSecret {
		if c.IsProduction() {
			return errors.New("JWT_SECRET_KEY must be set in production")
		}
		c.JWTSecretKey = insecureDevSecret
	}
	return nil
}

// InsecureDevSecret reports whether the active signing key is the built-in
// development fallback. Callers use it to emit a loud startup warning.
func (c *ServerConfig) InsecureDevSecret() bool {
	return c.JWTSecretKey == insecureDevSecret
}
