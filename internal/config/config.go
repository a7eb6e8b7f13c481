package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	AppEnv                 string
	LogLevel               string
	DatabaseURL            string
	MigrateOnStart         bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SummaryCacheTTLSeconds int
	SeedLockTTLSeconds     int
	BusinessTimezone       string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	GCSBucket              string
	GCSCredentialsJSON     string
	ImageDir               string
	PubSubProjectID        string
	PubSubCredentialsJSON  string
	ReceiptTopic           string
	RequestTimeoutSeconds  int
	ShutdownTimeoutSeconds int
}

// Load reads configuration from the environment, after applying a .env file if present.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		AppEnv:                 getEnv("APP_ENV", "production"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		MigrateOnStart:         getBool("MIGRATE_ON_START", true),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		SummaryCacheTTLSeconds: getPositiveInt("SUMMARY_CACHE_TTL_SECONDS", 300),
		SeedLockTTLSeconds:     getPositiveInt("SEED_LOCK_TTL_SECONDS", 30),
		BusinessTimezone:       getEnv("BUSINESS_TIMEZONE", "Asia/Manila"),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		GCSBucket:              strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCSCredentialsJSON:     os.Getenv("GCS_CREDENTIALS_JSON"),
		ImageDir:               getEnv("IMAGE_DIR", "uploads"),
		PubSubProjectID:        pubSubProjectID(),
		PubSubCredentialsJSON:  os.Getenv("PUBSUB_CREDENTIALS_JSON"),
		ReceiptTopic:           strings.TrimSpace(os.Getenv("RECEIPT_TOPIC")),
		RequestTimeoutSeconds:  getPositiveInt("REQUEST_TIMEOUT_SECONDS", 15),
		ShutdownTimeoutSeconds: getPositiveInt("SHUTDOWN_TIMEOUT_SECONDS", 8),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Location resolves the business timezone; an unknown zone is a startup error.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.BusinessTimezone)
}

func (c Config) SummaryCacheTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLSeconds) * time.Second
}

func (c Config) SeedLockTTL() time.Duration {
	return time.Duration(c.SeedLockTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func pubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
