// Package config loads service configuration from the environment, an optional .env file
// and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultHost             = "0.0.0.0"
	defaultRedisURL         = "redis://localhost:6379"
	defaultDeezerAPIURL     = "https://api.deezer.com"
	defaultDeezerRateLimit  = 10.0
	defaultDeezerBurst      = 50
	defaultDeezerCacheTTL   = 24 * time.Hour
	defaultDeezerTimeout    = 10 * time.Second
	defaultBroadcastTimeout = 5 * time.Second
	defaultShutdownTimeout  = 15 * time.Second
	defaultRequestTimeout   = 60 * time.Second
	defaultLogLevel         = "info"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Deezer    DeezerConfig
	Broadcast BroadcastConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Addr is the listen address for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

// AuthConfig enables bearer token verification when JWTSecret is set.
// Without it the acting user is taken from the gateway's X-User-Id header.
type AuthConfig struct {
	JWTSecret string
}

type DeezerConfig struct {
	APIURL    string
	RateLimit float64 // requests per second
	Burst     int
	CacheTTL  time.Duration
	Timeout   time.Duration
}

type BroadcastConfig struct {
	Timeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.host":            "HOST",
	"server.requesttimeout":  "REQUEST_TIMEOUT",
	"server.shutdowntimeout": "SHUTDOWN_TIMEOUT",
	"server.allowedorigins":  "ALLOWED_ORIGINS",
	"database.url":           "DATABASE_URL",
	"redis.url":              "REDIS_URL",
	"auth.jwtsecret":         "JWT_SECRET",
	"deezer.apiurl":          "DEEZER_API_URL",
	"deezer.ratelimit":       "DEEZER_RATE_LIMIT",
	"deezer.burst":           "DEEZER_BURST",
	"deezer.cachettl":        "DEEZER_CACHE_TTL",
	"deezer.timeout":         "DEEZER_TIMEOUT",
	"broadcast.timeout":      "BROADCAST_TIMEOUT",
	"logging.level":          "LOG_LEVEL",
	"logging.pretty":         "LOG_PRETTY",
}

// Load reads configuration for a service listening on defaultPort unless PORT overrides it.
func Load(defaultPort int) (*Config, error) {
	// .env is optional; deployments set real environment variables.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, defaultPort)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, port int) {
	v.SetDefault("server.port", port)
	v.SetDefault("server.host", defaultHost)
	v.SetDefault("server.requesttimeout", defaultRequestTimeout)
	v.SetDefault("server.shutdowntimeout", defaultShutdownTimeout)
	v.SetDefault("server.allowedorigins", []string{})

	v.SetDefault("redis.url", defaultRedisURL)

	v.SetDefault("deezer.apiurl", defaultDeezerAPIURL)
	v.SetDefault("deezer.ratelimit", defaultDeezerRateLimit)
	v.SetDefault("deezer.burst", defaultDeezerBurst)
	v.SetDefault("deezer.cachettl", defaultDeezerCacheTTL)
	v.SetDefault("deezer.timeout", defaultDeezerTimeout)

	v.SetDefault("broadcast.timeout", defaultBroadcastTimeout)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", false)
}

// Validate checks values every service depends on.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.Broadcast.Timeout <= 0 {
		problems = append(problems, "BROADCAST_TIMEOUT must be > 0")
	}
	if c.Deezer.RateLimit <= 0 || c.Deezer.Burst < 1 {
		problems = append(problems, "DEEZER_RATE_LIMIT must be > 0 and DEEZER_BURST >= 1")
	}
	if c.Redis.URL == "" {
		problems = append(problems, "REDIS_URL is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RequireDatabase is checked by services that own Postgres state.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}
