package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port string

	DBDriver    string // sqlite or postgres
	DBPath      string
	DatabaseURL string

	JWTSecret    string
	AuthRequired bool

	LogLevel  string
	LogFormat string

	RedisAddr     string // empty disables the score cache
	RedisPassword string
	RedisDB       int
	ScoreCacheTTL time.Duration

	CorridorCatalog string // empty uses the embedded catalog

	GeocoderURL     string // empty disables /geo/locate
	GeocoderTimeout time.Duration

	BatchWorkers  int
	BatchMaxCells int

	ScoreWindowDays        int
	ScoreHalfLifeDays      float64
	ScoreVerificationBonus float64

	RateLimit int // requests per minute per client, 0 disables
}

// Load reads configuration from the environment with defaults
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", ":8080"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:      getEnv("DB_PATH", "./data/riskzone.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:    getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		AuthRequired: getEnvBool("AUTH_REQUIRED", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ScoreCacheTTL: getEnvDuration("SCORE_CACHE_TTL", 5*time.Minute),

		CorridorCatalog: os.Getenv("CORRIDOR_CATALOG"),

		GeocoderURL:     os.Getenv("GEOCODER_URL"),
		GeocoderTimeout: getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second),

		BatchWorkers:  getEnvInt("BATCH_WORKERS", 8),
		BatchMaxCells: getEnvInt("BATCH_MAX_CELLS", 500),

		ScoreWindowDays:        getEnvInt("SCORE_WINDOW_DAYS", 90),
		ScoreHalfLifeDays:      getEnvFloat("SCORE_HALF_LIFE_DAYS", 30),
		ScoreVerificationBonus: getEnvFloat("SCORE_VERIFICATION_BONUS", 1.25),

		RateLimit: getEnvInt("RATE_LIMIT", 120),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
