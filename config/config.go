// Package config loads process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret string `env:"JWT_SECRET"`
	JWKSURL   string `env:"JWKS_URL"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string `env:"PAYMENT_CURRENCY" envDefault:"usd"`

	CloudinaryURL    string `env:"CLOUDINARY_URL"`
	CloudinaryFolder string `env:"CLOUDINARY_FOLDER" envDefault:"properties"`

	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

// Load reads files (default ".env") into the environment, without overriding
// variables already set, and parses the result.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		return Config{}, errors.New("one of JWT_SECRET or JWKS_URL must be set")
	}
	if cfg.LockTTL <= 0 {
		return Config{}, errors.New("LOCK_TTL must be positive")
	}
	return cfg, nil
}
