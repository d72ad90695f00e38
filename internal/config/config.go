package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration. Values come from defaults,
// an optional YAML file, and environment variables (VYHAN_ prefix).
type Config struct {
	Server struct {
		Address         string        `mapstructure:"address"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
		RateLimitPerSec int           `mapstructure:"rate_limit_per_sec"`
	} `mapstructure:"server"`

	Auth struct {
		Secret     string        `mapstructure:"secret"`
		Issuer     string        `mapstructure:"issuer"`
		AccessTTL  time.Duration `mapstructure:"access_ttl"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	} `mapstructure:"auth"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	SMS struct {
		GatewayURL string        `mapstructure:"gateway_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"sms"`

	Tracking struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"tracking"`
}

// Load reads configuration from env/file with defaults applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VYHAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.rate_limit_per_sec", 10)

	// Registered with an empty default so AutomaticEnv binds the key.
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "vyhan")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sms.gateway_url", "")
	v.SetDefault("sms.timeout", 10*time.Second)
	v.SetDefault("tracking.base_url", "http://localhost:3000/track")

	if cfgFile := os.Getenv("VYHAN_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vyhan")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads configuration or terminates the process. A missing signing
// secret is a fatal configuration error, never a per-request one.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret must be set (VYHAN_AUTH_SECRET)")
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("auth token lifetimes must be positive")
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return errors.New("auth.refresh_ttl must exceed auth.access_ttl")
	}
	return nil
}
