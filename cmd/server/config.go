package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/jasujm/bridgeapp/bridgeprotocol"
	"github.com/jasujm/bridgeapp/internal/db"
	"github.com/jasujm/bridgeapp/internal/redis"
)

// Config holds all configuration values for the application
type Config struct {
	// Database configuration
	DBConfig db.Config

	// Redis configuration
	RedisConfig redis.Config

	// Server configuration
	ServerPort  string
	Environment string

	// Authentication
	JWTSecret string

	// Bridge game server
	BridgeEndpoint      string
	BridgeEventEndpoint string // derived from BridgeEndpoint when empty
	CurveKeys           bridgeprotocol.CurveKeys
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	// Load .env file if it exists
	godotenv.Load()

	return Config{
		DBConfig: db.Config{
			Path: getEnv("DB_PATH", "bridgeapp.db"),
		},
		RedisConfig: redis.Config{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		Environment:         getEnv("ENV", "development"),
		JWTSecret:           getEnv("JWT_SECRET", "secret"),
		BridgeEndpoint:      getEnv("BRIDGE_ENDPOINT", "tcp://localhost:5555"),
		BridgeEventEndpoint: getEnv("BRIDGE_EVENT_ENDPOINT", ""),
		CurveKeys: bridgeprotocol.CurveKeys{
			ServerKey: getEnv("BRIDGE_CURVE_SERVERKEY", ""),
			PublicKey: getEnv("BRIDGE_CURVE_PUBLICKEY", ""),
			SecretKey: getEnv("BRIDGE_CURVE_SECRETKEY", ""),
		},
	}
}

// getEnv retrieves an environment variable or returns a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a fallback
func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
