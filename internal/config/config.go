/**
 * @description
 * Configuration management for the payment service. Values come from environment
 * variables, optionally seeded from a .env file in the given directory.
 *
 * @dependencies
 * - github.com/spf13/viper: Environment and .env configuration loading.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	CredentialBackendPostgres = "postgres"
	CredentialBackendRedis    = "redis"
)

// Config holds all the configuration variables for the payment service.
type Config struct {
	ServerPort               string           `mapstructure:"SERVER_PORT"`
	DatabaseURL              string           `mapstructure:"DATABASE_URL"`
	RedisURL                 string           `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string           `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	LookupRateLimitPerMinute int              `mapstructure:"LOOKUP_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL              string           `mapstructure:"RABBITMQ_URL"`
	EventsExchange           string           `mapstructure:"EVENTS_EXCHANGE"`
	AdminJWTSecret           string           `mapstructure:"ADMIN_JWT_SECRET"`
	CORSAllowedOrigins       string           `mapstructure:"CORS_ALLOWED_ORIGINS"`
	CredentialBackend        string           `mapstructure:"CREDENTIAL_BACKEND"`
	CredentialEncryptionKey  string           `mapstructure:"CREDENTIAL_ENCRYPTION_KEY"`
	OverdueSweepSchedule     string           `mapstructure:"OVERDUE_SWEEP_SCHEDULE"`
	QuickBooks               QuickBooksConfig `mapstructure:"-"`
}

// QuickBooksConfig carries the accounting client settings and the business
// defaults applied when party records are incomplete.
type QuickBooksConfig struct {
	BaseURL                string `mapstructure:"QB_BASE_URL"`
	TimeoutSeconds         int    `mapstructure:"QB_TIMEOUT_SECONDS"`
	PlaceholderEmailDomain string `mapstructure:"QB_PLACEHOLDER_EMAIL_DOMAIN"`
	PlaceholderPhone       string `mapstructure:"QB_PLACEHOLDER_PHONE"`
	DefaultDueToday        bool   `mapstructure:"QB_DEFAULT_DUE_TODAY"`
	ItemRef                string `mapstructure:"QB_ITEM_REF"`
	DepositAccountRef      string `mapstructure:"QB_DEPOSIT_ACCOUNT_REF"`
	CashPaymentMethodRef   string `mapstructure:"QB_CASH_PAYMENT_METHOD_REF"`
	BillAddressLine1       string `mapstructure:"QB_BILL_ADDRESS_LINE1"`
	BillAddressCity        string `mapstructure:"QB_BILL_ADDRESS_CITY"`
	BillAddressCountry     string `mapstructure:"QB_BILL_ADDRESS_COUNTRY"`
}

var quickBooksKeys = []string{
	"QB_BASE_URL",
	"QB_TIMEOUT_SECONDS",
	"QB_PLACEHOLDER_EMAIL_DOMAIN",
	"QB_PLACEHOLDER_PHONE",
	"QB_DEFAULT_DUE_TODAY",
	"QB_ITEM_REF",
	"QB_DEPOSIT_ACCOUNT_REF",
	"QB_CASH_PAYMENT_METHOD_REF",
	"QB_BILL_ADDRESS_LINE1",
	"QB_BILL_ADDRESS_CITY",
	"QB_BILL_ADDRESS_COUNTRY",
}

// LoadConfig reads configuration from environment variables and an optional
// .env file located at path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "schoolfees:rate_limit")
	viper.SetDefault("LOOKUP_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("EVENTS_EXCHANGE", "schoolfees.events")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("CREDENTIAL_BACKEND", CredentialBackendPostgres)
	viper.SetDefault("OVERDUE_SWEEP_SCHEDULE", "15 0 * * *")
	viper.SetDefault("QB_BASE_URL", "https://sandbox-quickbooks.api.intuit.com/v3")
	viper.SetDefault("QB_TIMEOUT_SECONDS", 30)
	viper.SetDefault("QB_PLACEHOLDER_EMAIL_DOMAIN", "school.com")
	viper.SetDefault("QB_PLACEHOLDER_PHONE", "+260 000 000 000")
	viper.SetDefault("QB_DEFAULT_DUE_TODAY", true)
	viper.SetDefault("QB_ITEM_REF", "1")
	viper.SetDefault("QB_DEPOSIT_ACCOUNT_REF", "4")
	viper.SetDefault("QB_CASH_PAYMENT_METHOD_REF", "1")
	viper.SetDefault("QB_BILL_ADDRESS_LINE1", "School Address")
	viper.SetDefault("QB_BILL_ADDRESS_CITY", "Lusaka")
	viper.SetDefault("QB_BILL_ADDRESS_COUNTRY", "Zambia")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("LOOKUP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("CREDENTIAL_BACKEND")
	_ = viper.BindEnv("CREDENTIAL_ENCRYPTION_KEY", "CREDENTIAL_ENCRYPTION_KEY", "QB_TOKEN_ENCRYPTION_KEY")
	_ = viper.BindEnv("OVERDUE_SWEEP_SCHEDULE")
	for _, key := range quickBooksKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}
	if err = viper.Unmarshal(&config.QuickBooks); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "schoolfees:rate_limit"
	}
	if config.LookupRateLimitPerMinute <= 0 {
		config.LookupRateLimitPerMinute = 30
	}

	config.CredentialBackend = strings.ToLower(strings.TrimSpace(config.CredentialBackend))
	switch config.CredentialBackend {
	case CredentialBackendPostgres, CredentialBackendRedis:
	default:
		log.Printf("level=warn component=config msg=\"unknown credential backend; falling back to postgres\" value=%q", config.CredentialBackend)
		config.CredentialBackend = CredentialBackendPostgres
	}
	if config.CredentialBackend == CredentialBackendRedis && config.RedisURL == "" {
		log.Printf("level=warn component=config msg=\"redis credential backend requires REDIS_URL; falling back to postgres\"")
		config.CredentialBackend = CredentialBackendPostgres
	}

	qb := &config.QuickBooks
	qb.BaseURL = strings.TrimRight(strings.TrimSpace(qb.BaseURL), "/")
	if qb.TimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive accounting timeout; using default\" value=%d", qb.TimeoutSeconds)
		qb.TimeoutSeconds = 30
	}
	qb.PlaceholderEmailDomain = strings.TrimPrefix(strings.TrimSpace(qb.PlaceholderEmailDomain), "@")
	if qb.PlaceholderEmailDomain == "" {
		qb.PlaceholderEmailDomain = "school.com"
	}

	return
}

// AllowedOrigins splits the configured CORS origins.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
