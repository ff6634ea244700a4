// Package config provides configuration management for the reachpoint
// service.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig holds configuration for the HTTP API service and its
// supporting subsystems.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	DatabaseURL    string

	// Write coalescer tuning, shared by every per-collection instance.
	BatchSize     int
	FlushInterval time.Duration
	QueueLimit    int
	FlushTimeout  time.Duration
	FlushRetries  int

	// Dummy message vendor endpoint for campaign delivery.
	VendorSendURL string

	// Message suggestion backends (OpenAI-compatible chat completion).
	// Secondary is optional; when set it serves as fallback.
	SuggestPrimaryURL   string
	SuggestSecondaryURL string
	SuggestModel        string

	// Issued auth token lifetime.
	TokenTTL time.Duration
}

// DefaultServerConfig returns configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		RequestTimeout: 30 * time.Second,
		DatabaseURL:    "sqlite://reachpoint.db",
		BatchSize:      100,
		FlushInterval:  5 * time.Second,
		QueueLimit:     10000,
		FlushTimeout:   30 * time.Second,
		FlushRetries:   3,
		VendorSendURL:  "http://localhost:9090/send",
		SuggestModel:   "gpt-4o-mini",
		TokenTTL:       24 * time.Hour,
	}
}

// JWTSecret extracts the token signing secret from RP_JWT_SECRET.
// The value is base64 and must decode to at least 32 bytes. Secrets are
// environment-only; config files carrying one are rejected at load.
func JWTSecret() ([]byte, error) {
	val := os.Getenv("RP_JWT_SECRET")
	if val == "" {
		return nil, fmt.Errorf("RP_JWT_SECRET environment variable not set")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(val))
	if err != nil {
		return nil, fmt.Errorf("RP_JWT_SECRET: invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("RP_JWT_SECRET: secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// SuggestAPIKey returns the suggestion backend credential from
// RP_SUGGEST_API_KEY, empty when unset (backends without auth).
func SuggestAPIKey() string {
	return strings.TrimSpace(os.Getenv("RP_SUGGEST_API_KEY"))
}
