package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	WebhookSecret           string
	WebhookToleranceSeconds int
	IntentCacheTTLSeconds   int
	RateLimitPerMinute      int
}

func Load() Config {
	// Missing .env just means the environment is already set up.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	tolerance, err := strconv.Atoi(getEnv("WEBHOOK_TOLERANCE_SECONDS", "300"))
	if err != nil || tolerance < 1 {
		tolerance = 300
	}
	cacheTTL, err := strconv.Atoi(getEnv("INTENT_CACHE_TTL_SECONDS", "86400"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 86400
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "300"))
	if err != nil || rateLimit < 1 {
		rateLimit = 300
	}

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
		WebhookSecret:           strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),
		WebhookToleranceSeconds: tolerance,
		IntentCacheTTLSeconds:   cacheTTL,
		RateLimitPerMinute:      rateLimit,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
