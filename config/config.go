package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configurations
type Config struct {
	DatabaseURL     string
	TrackingBaseURL string // public base URL baked into pixel links

	MailHub       string
	AuthUser      string
	AuthPass      string
	FromEmail     string
	SkipTLSVerify bool

	DailyMailLimit int

	// Connection manager knobs. Pool size stays at 1 logical connection:
	// the deployment target is many short-lived handlers, so the manager
	// optimizes against connection storms, not throughput.
	DBPoolSize       int
	DBConnectTimeout time.Duration
	DBIdleTimeout    time.Duration

	// Wall-clock budget for recording one open event after the pixel
	// response has been written.
	RecordTimeout time.Duration

	// Honor CF-Connecting-IP only when the deployment actually sits
	// behind Cloudflare.
	TrustCloudflare bool
}

// LoadConfig reads configuration from .env file
func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables directly.")
	}

	dailyLimitStr := os.Getenv("DAILY_MAIL_LIMIT")
	dailyLimit, err := strconv.Atoi(dailyLimitStr)
	if err != nil || dailyLimit == 0 {
		dailyLimit = 2000 // Default limit
		log.Printf("DAILY_MAIL_LIMIT not set or invalid, defaulting to %d", dailyLimit)
	}

	return &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		TrackingBaseURL:  envOrDefault("TRACKING_BASE_URL", "http://localhost:8080"),
		MailHub:          os.Getenv("MAILHUB"),
		AuthUser:         os.Getenv("AUTHUSER"),
		AuthPass:         os.Getenv("AUTHPASS"),
		FromEmail:        os.Getenv("FROM_EMAIL"),
		SkipTLSVerify:    os.Getenv("SKIP_TLS_VERIFY") == "YES",
		DailyMailLimit:   dailyLimit,
		DBPoolSize:       envIntOrDefault("DB_POOL_SIZE", 1),
		DBConnectTimeout: envDurationOrDefault("DB_CONNECT_TIMEOUT", 10*time.Second),
		DBIdleTimeout:    envDurationOrDefault("DB_IDLE_TIMEOUT", 45*time.Second),
		RecordTimeout:    envDurationOrDefault("RECORD_TIMEOUT", 4500*time.Millisecond),
		TrustCloudflare:  os.Getenv("TRUST_CLOUDFLARE") == "YES",
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("%s invalid (%q), defaulting to %d", key, v, def)
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("%s invalid (%q), defaulting to %s", key, v, def)
		return def
	}
	return d
}
