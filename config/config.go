package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string

	MongoURI      string
	MongoDatabase string

	RedisAddr string
	RedisDB   int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
	// Public base URL images are served from, e.g. https://cdn.example.com
	MinioPublicURL string

	JWTSecret string
}

// Load reads configuration from the environment, preferring a local .env file
// when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment as-is")
	}

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"), ","),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "pinmap"),
		MinioBucket:    getEnv("MINIO_BUCKET", "location-images"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}

	var err error
	if cfg.MongoURI, err = mustGetEnv("MONGODB_URI"); err != nil {
		return nil, err
	}
	if cfg.RedisAddr, err = mustGetEnv("REDIS_ADDR"); err != nil {
		return nil, err
	}
	if cfg.MinioEndpoint, err = mustGetEnv("MINIO_ENDPOINT"); err != nil {
		return nil, err
	}
	if cfg.MinioAccessKey, err = mustGetEnv("MINIO_ACCESS_KEY"); err != nil {
		return nil, err
	}
	if cfg.MinioSecretKey, err = mustGetEnv("MINIO_SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.JWTSecret, err = mustGetEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	cfg.MinioPublicURL = getEnv("MINIO_PUBLIC_URL", publicURLFor(cfg))

	redisDB := getEnv("REDIS_DB", "0")
	cfg.RedisDB, err = strconv.Atoi(redisDB)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value %q: %w", redisDB, err)
	}

	return cfg, nil
}

func publicURLFor(cfg *Config) string {
	scheme := "http"
	if cfg.MinioUseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, cfg.MinioEndpoint)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustGetEnv(key string) (string, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %s is not set", key)
	}
	return val, nil
}
