package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.database_url", "sqlite://reachpoint.db")
	v.SetDefault("server.token_ttl", "24h")
	v.SetDefault("batch.size", 100)
	v.SetDefault("batch.flush_interval", "5s")
	v.SetDefault("batch.queue_limit", 10000)
	v.SetDefault("batch.flush_timeout", "30s")
	v.SetDefault("batch.flush_retries", 3)
	v.SetDefault("vendor.send_url", "http://localhost:9090/send")
	v.SetDefault("suggest.primary_url", "")
	v.SetDefault("suggest.secondary_url", "")
	v.SetDefault("suggest.model", "gpt-4o-mini")

	v.SetEnvPrefix("RP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Host:                v.GetString("server.host"),
		Port:                v.GetInt("server.port"),
		RequestTimeout:      v.GetDuration("server.request_timeout"),
		DatabaseURL:         v.GetString("server.database_url"),
		TokenTTL:            v.GetDuration("server.token_ttl"),
		BatchSize:           v.GetInt("batch.size"),
		FlushInterval:       v.GetDuration("batch.flush_interval"),
		QueueLimit:          v.GetInt("batch.queue_limit"),
		FlushTimeout:        v.GetDuration("batch.flush_timeout"),
		FlushRetries:        v.GetInt("batch.flush_retries"),
		VendorSendURL:       v.GetString("vendor.send_url"),
		SuggestPrimaryURL:   v.GetString("suggest.primary_url"),
		SuggestSecondaryURL: v.GetString("suggest.secondary_url"),
		SuggestModel:        v.GetString("suggest.model"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive values for the timing and
// batching knobs.
func validateConfig(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %v", cfg.FlushInterval)
	}
	if cfg.QueueLimit < cfg.BatchSize {
		return fmt.Errorf("queue_limit must be at least batch size, got %d", cfg.QueueLimit)
	}
	if cfg.FlushTimeout <= 0 {
		return fmt.Errorf("flush_timeout must be positive, got %v", cfg.FlushTimeout)
	}
	if cfg.FlushRetries < 0 {
		return fmt.Errorf("flush_retries must not be negative, got %d", cfg.FlushRetries)
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %v", cfg.TokenTTL)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("jwt_secret") || v.IsSet("server.jwt_secret") {
		return fmt.Errorf("JWT secrets not allowed in config files (use RP_JWT_SECRET environment variable)")
	}
	if v.IsSet("suggest.api_key") {
		return fmt.Errorf("suggestion API keys not allowed in config files (use RP_SUGGEST_API_KEY environment variable)")
	}
	return nil
}
