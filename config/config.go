package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the service reads, so components receive an
// explicit struct instead of reaching for ambient process state.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	CookieName   string
	CookieDomain string
	TokenTTL     time.Duration
	CodeTTL      time.Duration

	// Debug disables the Secure cookie flag for local development.
	Debug bool

	ResendAPIKey string
	EmailFrom    string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("error load env %s", err)
	}

	return Config{
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		CookieName:   envOr("AUTH_COOKIE_NAME", "auth_token"),
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		TokenTTL:     envSeconds("AUTH_TOKEN_TTL_SECONDS", 7*24*time.Hour),
		CodeTTL:      envSeconds("VERIFICATION_CODE_TTL_SECONDS", 10*time.Minute),
		Debug:        os.Getenv("DEBUG") == "true",
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		EmailFrom:    os.Getenv("EMAIL_FROM"),
	}
}

func envOr(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		log.Printf("invalid %s value %q, using default", key, value)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
