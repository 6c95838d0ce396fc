package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration (notification stream)
	RedisAddr         string
	RedisDB           int
	RedisStream       string
	RedisStreamMaxLen int

	// Memcache configuration (fetch cooldown marks)
	MemcacheAddr string

	// SQLite configuration
	DatabasePath string

	// Scheduler configuration
	ScheduleHours []int

	// Fetch configuration
	FetchRetries int
	RetryDelay   time.Duration
	FetchTimeout time.Duration

	// Browser session configuration
	Headless     bool
	CookiePath   string
	ChallengeURL string

	// Marketplace hosts
	OzonHost        string
	WildberriesHost string

	// Metrics exporter
	MetricsAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAXLEN", "1000"))
	retries, _ := strconv.Atoi(getEnv("FETCH_RETRIES", "2"))
	retryDelay, _ := strconv.Atoi(getEnv("FETCH_RETRY_DELAY_MS", "1200"))
	fetchTimeout, _ := strconv.Atoi(getEnv("FETCH_TIMEOUT_SECONDS", "60"))

	return &Config{
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           redisDB,
		RedisStream:       getEnv("REDIS_STREAM", "price_notifications"),
		RedisStreamMaxLen: streamMaxLen,
		MemcacheAddr:      getEnv("MEMCACHE_ADDR", "localhost:11211"),
		DatabasePath:      getEnv("DATABASE_PATH", "pricesentry.db"),
		ScheduleHours:     parseHours(getEnv("SCHEDULE_HOURS", "9,15,21")),
		FetchRetries:      retries,
		RetryDelay:        time.Duration(retryDelay) * time.Millisecond,
		FetchTimeout:      time.Duration(fetchTimeout) * time.Second,
		Headless:          getEnvBool("BROWSER_HEADLESS", true),
		CookiePath:        getEnv("COOKIE_PATH", ".ozon_cookies.json"),
		ChallengeURL:      getEnv("CHALLENGE_URL", "https://www.ozon.ru/?abt_att=1&__rr=1"),
		OzonHost:          getEnv("OZON_HOST", "www.ozon.ru"),
		WildberriesHost:   getEnv("WILDBERRIES_HOST", "www.wildberries.ru"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		Environment:       getEnv("SENTRY_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the process cannot run with
func (c *Config) Validate() error {
	if len(c.ScheduleHours) == 0 {
		return fmt.Errorf("no valid schedule hours configured")
	}
	for _, h := range c.ScheduleHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("schedule hour out of range: %d", h)
		}
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("fetch retries must be non-negative")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is empty")
	}
	if c.RedisStreamMaxLen <= 0 {
		return fmt.Errorf("redis stream max length must be positive")
	}
	return nil
}

// parseHours parses a comma-separated list of hour marks, dropping invalid
// entries and duplicates
func parseHours(s string) []int {
	var hours []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || seen[h] {
			continue
		}
		seen[h] = true
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
