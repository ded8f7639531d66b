package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	// JWTSecret signs both platform access tokens and room tokens.
	JWTSecret string

	// RoomAddress is the websocket address handed out at join.
	RoomAddress string

	// JoinEarlyBuffer is how long before the scheduled start a join is admitted.
	JoinEarlyBuffer time.Duration

	// RoomTokenTTL bounds room token validity past the session end.
	RoomTokenTTL time.Duration

	// ResourceDir is where uploaded session resources are stored.
	ResourceDir string

	CORSOrigins []string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", "postgres://localhost:5432/liveclass?sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-me"),
		RoomAddress:     getEnv("ROOM_ADDRESS", "ws://localhost:8080/api/ws/session"),
		JoinEarlyBuffer: getDuration("JOIN_EARLY_BUFFER", 10*time.Minute),
		RoomTokenTTL:    getDuration("ROOM_TOKEN_TTL", 4*time.Hour),
		ResourceDir:     getEnv("RESOURCE_DIR", "./resources"),
		CORSOrigins:     []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if mins, err := strconv.Atoi(val); err == nil {
		return time.Duration(mins) * time.Minute
	}
	log.Warn().Str("key", key).Str("value", val).Msg("unparseable duration, using default")
	return defaultVal
}
