/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the distribution-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                  string `mapstructure:"SERVER_PORT"`
	DatabaseURL                 string `mapstructure:"DATABASE_URL"`
	RedisURL                    string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix        string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                 string `mapstructure:"RABBITMQ_URL"`
	DistributionEventQueue      string `mapstructure:"DISTRIBUTION_EVENT_QUEUE"`
	JWKSURL                     string `mapstructure:"JWKS_URL"`
	InternalAPIKey              string `mapstructure:"INTERNAL_API_KEY"`
	ChainResolverURL            string `mapstructure:"CHAIN_RESOLVER_URL"`
	ChainResolverAPIKey         string `mapstructure:"CHAIN_RESOLVER_API_KEY"`
	RecipientServiceURL         string `mapstructure:"RECIPIENT_SERVICE_URL"`
	RecipientServiceAPIKey      string `mapstructure:"RECIPIENT_SERVICE_API_KEY"`
	ClaimTTLHours               int    `mapstructure:"CLAIM_TTL_HOURS"`
	ClaimRateLimitPerMinute     int    `mapstructure:"CLAIM_RATE_LIMIT_PER_MINUTE"`
	ExpirySweepSchedule         string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	ExpirySweepBatchLimit       int    `mapstructure:"EXPIRY_SWEEP_BATCH_LIMIT"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DISTRIBUTION_EVENT_QUEUE", "distribution_service.settlement_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "worklane:rate_limit")
	viper.SetDefault("CLAIM_TTL_HOURS", 72)
	viper.SetDefault("CLAIM_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("EXPIRY_SWEEP_BATCH_LIMIT", 200)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "DISTRIBUTION_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DISTRIBUTION_EVENT_QUEUE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "DISTRIBUTION_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("CHAIN_RESOLVER_URL")
	_ = viper.BindEnv("CHAIN_RESOLVER_API_KEY")
	_ = viper.BindEnv("RECIPIENT_SERVICE_URL")
	_ = viper.BindEnv("RECIPIENT_SERVICE_API_KEY")
	_ = viper.BindEnv("CLAIM_TTL_HOURS")
	_ = viper.BindEnv("CLAIM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("EXPIRY_SWEEP_BATCH_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("DISTRIBUTION_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "worklane:rate_limit"
	}
	config.ChainResolverAPIKey = strings.TrimSpace(config.ChainResolverAPIKey)
	if config.ChainResolverAPIKey == "" {
		config.ChainResolverAPIKey = config.InternalAPIKey
	}
	config.RecipientServiceAPIKey = strings.TrimSpace(config.RecipientServiceAPIKey)
	if config.RecipientServiceAPIKey == "" {
		config.RecipientServiceAPIKey = config.InternalAPIKey
	}

	if config.ClaimTTLHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive claim TTL configured; using default\" claim_ttl_hours=%d", config.ClaimTTLHours)
		config.ClaimTTLHours = 72
	}
	if config.ClaimRateLimitPerMinute <= 0 {
		config.ClaimRateLimitPerMinute = 30
	}
	if strings.TrimSpace(config.ExpirySweepSchedule) == "" {
		config.ExpirySweepSchedule = "*/10 * * * *"
	}
	if config.ExpirySweepBatchLimit <= 0 {
		config.ExpirySweepBatchLimit = 200
	}

	return
}
