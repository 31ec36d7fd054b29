// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
// A .env file in the working directory is loaded first when present; values
// already set in the process environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// CORS origins allowed to call the API from the browser (comma-separated).
	AllowedOrigins string

	// PostgreSQL connection (the Supabase database or a local instance)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Valkey (Redis-compatible cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Supabase auth: access tokens are HS256 JWTs signed with JWTSecret.
	// SupabaseURL + SupabaseAnonKey enable the remote /auth/v1/user fallback.
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string

	// AI provider settings
	AIProvider     string // "openai", "gemini", "claude", "mistral"
	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	GeminiKey      string
	GeminiModel    string
	GeminiBaseURL  string
	ClaudeKey      string
	ClaudeModel    string
	ClaudeBaseURL  string
	MistralKey     string
	MistralModel   string
	MistralBaseURL string

	// Image generation. ImageModel is sent to the chat-completions gateway
	// when ImageTaskURL is empty; otherwise the task-based API is used.
	ImageModel       string
	ImageTaskURL     string
	ImageTaskKey     string
	ImageTaskModel   string
	TranscribeModel  string
	AIRequestsPerMin int

	// S3-compatible object storage (Supabase Storage S3 endpoint or any S3)
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3BucketPublic  string
	S3BucketPrivate string
	S3PublicURL     string

	// Payment providers
	MonerooSecretKey     string
	MonerooWebhookSecret string
	MonerooBaseURL       string
	FedaPaySecretKey     string
	FedaPayWebhookSecret string
	FedaPayBaseURL       string
	PaymentReturnURL     string
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		AllowedOrigins: envOrDefault("ALLOWED_ORIGINS", "http://localhost:5173"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "graphiste"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "graphiste"),
		DBSSLMode:  envOrDefault("POSTGRES_SSLMODE", "disable"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:   os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseJWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),

		AIProvider:     envOrDefault("AI_PROVIDER", "openai"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envOrDefault("OPENAI_MODEL", "google/gemini-2.5-flash"),
		OpenAIBaseURL:  envOrDefault("OPENAI_BASE_URL", "https://ai.gateway.lovable.dev/v1"),
		GeminiKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:  envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		ClaudeKey:      os.Getenv("CLAUDE_API_KEY"),
		ClaudeModel:    envOrDefault("CLAUDE_MODEL", "claude-sonnet-4-5"),
		ClaudeBaseURL:  envOrDefault("CLAUDE_BASE_URL", "https://api.anthropic.com"),
		MistralKey:     os.Getenv("MISTRAL_API_KEY"),
		MistralModel:   envOrDefault("MISTRAL_MODEL", "mistral-large-latest"),
		MistralBaseURL: envOrDefault("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),

		ImageModel:       envOrDefault("IMAGE_MODEL", "google/gemini-2.5-flash-image-preview"),
		ImageTaskURL:     os.Getenv("IMAGE_TASK_URL"),
		ImageTaskKey:     os.Getenv("IMAGE_TASK_API_KEY"),
		ImageTaskModel:   envOrDefault("IMAGE_TASK_MODEL", "nano-banana-pro"),
		TranscribeModel:  envOrDefault("TRANSCRIBE_MODEL", "whisper-1"),
		AIRequestsPerMin: envIntOrDefault("AI_REQUESTS_PER_MINUTE", 60),

		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3Region:        envOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3BucketPublic:  envOrDefault("S3_BUCKET_PUBLIC", "generated-images"),
		S3BucketPrivate: envOrDefault("S3_BUCKET_PRIVATE", "uploads"),
		S3PublicURL:     os.Getenv("S3_PUBLIC_URL"),

		MonerooSecretKey:     os.Getenv("MONEROO_SECRET_KEY"),
		MonerooWebhookSecret: os.Getenv("MONEROO_WEBHOOK_SECRET"),
		MonerooBaseURL:       envOrDefault("MONEROO_BASE_URL", "https://api.moneroo.io"),
		FedaPaySecretKey:     os.Getenv("FEDAPAY_SECRET_KEY"),
		FedaPayWebhookSecret: os.Getenv("FEDAPAY_WEBHOOK_SECRET"),
		FedaPayBaseURL:       envOrDefault("FEDAPAY_BASE_URL", "https://api.fedapay.com"),
		PaymentReturnURL:     envOrDefault("PAYMENT_RETURN_URL", "http://localhost:5173/pricing?status=done"),
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.SupabaseJWTSecret == "" && cfg.SupabaseURL == "" {
			return nil, fmt.Errorf("SUPABASE_JWT_SECRET or SUPABASE_URL must be set in production")
		}
		if cfg.MonerooSecretKey != "" && cfg.MonerooWebhookSecret == "" {
			return nil, fmt.Errorf("MONEROO_WEBHOOK_SECRET must be set when Moneroo is enabled")
		}
		if cfg.FedaPaySecretKey != "" && cfg.FedaPayWebhookSecret == "" {
			return nil, fmt.Errorf("FEDAPAY_WEBHOOK_SECRET must be set when FedaPay is enabled")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOrDefault reads an integer environment variable. Invalid or
// non-positive values fall back to the default.
func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
