/**
 * @description
 * This package handles the configuration management for the bond service. It uses
 * Viper to read an optional .env file and environment variables into a single
 * Config struct.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and environment binding.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerPort       = "8000"
	defaultDatabaseURL      = "sqlite://bonds.db"
	defaultGleifBaseURL     = "https://leilookup.gleif.org"
	defaultGleifTimeout     = 10
	defaultRateLimitPrefix  = "bonds:rate_limit"
	defaultCreateRateLimit  = 60
	defaultEventsExchange   = "bonds.events"
	defaultCORSAllowOrigins = "https://*,http://*"
)

// ErrMissingAuthKeys is returned when no token verification key is configured.
var ErrMissingAuthKeys = errors.New("AUTH_JWKS_URL or AUTH_JWT_SECRET must be set")

// Config holds all the configuration variables for the bond service.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	AuthJWKSURL   string `mapstructure:"AUTH_JWKS_URL"`
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`

	GleifAPIBaseURL     string `mapstructure:"GLEIF_API_BASE_URL"`
	GleifTimeoutSeconds int    `mapstructure:"GLEIF_TIMEOUT_SECONDS"`

	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	BondCreateRateLimitPerMinute int    `mapstructure:"BOND_CREATE_RATE_LIMIT_PER_MINUTE"`

	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	BondEventsExchange string `mapstructure:"BOND_EVENTS_EXCHANGE"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from an optional .env file in path and from
// environment variables, which take precedence.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("DATABASE_URL", defaultDatabaseURL)
	viper.SetDefault("GLEIF_API_BASE_URL", defaultGleifBaseURL)
	viper.SetDefault("GLEIF_TIMEOUT_SECONDS", defaultGleifTimeout)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("BOND_CREATE_RATE_LIMIT_PER_MINUTE", defaultCreateRateLimit)
	viper.SetDefault("BOND_EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", defaultCORSAllowOrigins)

	// Bind explicitly so keys absent from the .env file still reach Unmarshal.
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"AUTH_JWKS_URL",
		"AUTH_JWT_SECRET",
		"AUTH_AUDIENCE",
		"AUTH_ISSUER",
		"GLEIF_API_BASE_URL",
		"GLEIF_TIMEOUT_SECONDS",
		"REDIS_URL",
		"REDIS_RATE_LIMIT_PREFIX",
		"BOND_CREATE_RATE_LIMIT_PER_MINUTE",
		"RABBITMQ_URL",
		"BOND_EVENTS_EXCHANGE",
		"CORS_ALLOWED_ORIGINS",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.ServerPort = strings.TrimSpace(config.ServerPort)
	if config.ServerPort == "" {
		config.ServerPort = defaultServerPort
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	if config.DatabaseURL == "" {
		config.DatabaseURL = defaultDatabaseURL
	}

	config.AuthJWKSURL = strings.TrimSpace(config.AuthJWKSURL)
	config.AuthJWTSecret = strings.TrimSpace(config.AuthJWTSecret)
	config.AuthAudience = strings.TrimSpace(config.AuthAudience)
	config.AuthIssuer = strings.TrimSpace(config.AuthIssuer)
	if config.AuthJWKSURL == "" && config.AuthJWTSecret == "" {
		err = ErrMissingAuthKeys
		return
	}

	config.GleifAPIBaseURL = strings.TrimSpace(config.GleifAPIBaseURL)
	if config.GleifAPIBaseURL == "" {
		config.GleifAPIBaseURL = defaultGleifBaseURL
	}
	if config.GleifTimeoutSeconds <= 0 {
		config.GleifTimeoutSeconds = defaultGleifTimeout
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	if config.BondCreateRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative create rate limit configured; disabling\" limit=%d", config.BondCreateRateLimitPerMinute)
		config.BondCreateRateLimitPerMinute = 0
	}

	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.BondEventsExchange = strings.TrimSpace(config.BondEventsExchange)
	if config.BondEventsExchange == "" {
		config.BondEventsExchange = defaultEventsExchange
	}

	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into its non-empty entries.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return strings.Split(defaultCORSAllowOrigins, ",")
	}
	return origins
}
