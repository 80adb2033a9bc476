package config

import (
	"fmt"
	"time"

	"github.com/invigilo/invigilo/internal/configs/env"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	SignalStreamKey         string
	SignalConsumerGroup     string
	StreamRetentionDuration time.Duration

	// Evidence store
	EvidenceStoreURL string
	EvidenceAPIKey   string

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// CORS
	AllowedOrigins []string

	// Detection pipeline
	AutosaveInterval    time.Duration
	SessionIdleTimeout  time.Duration
	EvidenceWorkerCount int

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.SignalStreamKey = env.GetEnv("SIGNAL_STREAM_KEY", "proctor:signals")
	cfg.SignalConsumerGroup = env.GetEnv("SIGNAL_CONSUMER_GROUP", "proctor:group")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_HOURS", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour

	// Evidence store
	cfg.EvidenceStoreURL = env.GetEnv("EVIDENCE_STORE_URL", "")
	cfg.EvidenceAPIKey = env.GetEnv("EVIDENCE_API_KEY", "")

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "invigilo")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// CORS
	if origin := env.GetEnv("ALLOWED_ORIGIN", ""); origin != "" {
		cfg.AllowedOrigins = []string{origin}
	}

	// Detection pipeline
	cfg.AutosaveInterval = env.GetEnvDuration("AUTOSAVE_INTERVAL", 15*time.Second)
	cfg.SessionIdleTimeout = env.GetEnvDuration("SESSION_IDLE_TIMEOUT", 5*time.Minute)
	cfg.EvidenceWorkerCount = env.GetEnvInt("EVIDENCE_WORKERS", 0)

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AutosaveInterval <= 0 {
		return fmt.Errorf("AUTOSAVE_INTERVAL must be greater than 0")
	}
	if c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_HOURS must be greater than 0")
	}
	return nil
}
