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
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the bank-simulator.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                string  `mapstructure:"DATABASE_URL"`
	RedisURL                   string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string  `mapstructure:"RABBITMQ_URL"`
	TransferEventQueue         string  `mapstructure:"TRANSFER_EVENT_QUEUE"`
	PaymentsExchange           string  `mapstructure:"PAYMENTS_EXCHANGE"`
	PaymentNetworkURL          string  `mapstructure:"PAYMENT_NETWORK_URL"`
	PaymentNetworkAPIKey       string  `mapstructure:"PAYMENT_NETWORK_API_KEY"`
	BankBIC                    string  `mapstructure:"BANK_BIC"`
	InternalAPIKey             string  `mapstructure:"INTERNAL_API_KEY"`
	ExchangeRate               float64 `mapstructure:"EXCHANGE_RATE"`
	TransferRateLimitPerMinute int     `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("TRANSFER_EVENT_QUEUE", "bank_simulator.transfer_events")
	viper.SetDefault("PAYMENTS_EXCHANGE", "payments")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "banksim:rate_limit")
	viper.SetDefault("EXCHANGE_RATE", 1.0)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRANSFER_EVENT_QUEUE")
	_ = viper.BindEnv("PAYMENTS_EXCHANGE")
	_ = viper.BindEnv("PAYMENT_NETWORK_URL")
	_ = viper.BindEnv("PAYMENT_NETWORK_API_KEY")
	_ = viper.BindEnv("BANK_BIC")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BANK_SIMULATOR_INTERNAL_API_KEY")
	_ = viper.BindEnv("EXCHANGE_RATE")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")

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
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("BANK_SIMULATOR_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "banksim:rate_limit"
	}
	config.BankBIC = strings.TrimSpace(config.BankBIC)
	config.PaymentsExchange = strings.TrimSpace(config.PaymentsExchange)
	if config.PaymentsExchange == "" {
		config.PaymentsExchange = "payments"
	}

	// EXCHANGE_RATE may arrive as a quoted string on some platforms.
	if rateStr := strings.TrimSpace(viper.GetString("EXCHANGE_RATE")); rateStr != "" {
		if rateValue, parseErr := strconv.ParseFloat(rateStr, 64); parseErr != nil {
			log.Printf("level=warn component=config msg=\"invalid EXCHANGE_RATE\" value=%q err=%v", rateStr, parseErr)
		} else {
			config.ExchangeRate = rateValue
		}
	}
	if config.ExchangeRate <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive exchange rate configured; using 1\" rate=%f", config.ExchangeRate)
		config.ExchangeRate = 1.0
	}

	if config.TransferRateLimitPerMinute <= 0 {
		config.TransferRateLimitPerMinute = 60
	}

	return
}
