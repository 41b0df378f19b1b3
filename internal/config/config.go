// Package config holds service configuration and tuning constants.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// Room lifecycle
	RoomTTL     = time.Hour
	EvalTimeout = 3 * time.Minute
	BcryptCost  = 10

	// Client polling guidance, surfaced in the create response.
	StatusPollInterval = 2 * time.Second
	StatusPollTimeout  = 120 * time.Second

	// HTTP server
	ReadTimeout    = 10 * time.Second
	WriteTimeout   = 10 * time.Second
	MaxHeaderBytes = 1 << 20
)

// Config carries the environment-driven settings. Values come from the
// process environment, optionally seeded from a .env file by main.
type Config struct {
	Port string

	// Store selects the room store backend: "redis" or "memory".
	Store         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeminiAPIKey string
	GeminiModel  string

	// PublicBaseURL is the front-end origin used to build invite links.
	PublicBaseURL string

	LogJSON bool
	Debug   bool
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Port:          getenv("PORT", "8080"),
		Store:         getenv("STORE", "redis"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:3000"),
		LogJSON:       getenvBool("LOG_JSON", false),
		Debug:         getenvBool("DEBUG", false),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
