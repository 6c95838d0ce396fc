package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "price_notifications", cfg.RedisStream)
	assert.Equal(t, "localhost:11211", cfg.MemcacheAddr)
	assert.Equal(t, []int{9, 15, 21}, cfg.ScheduleHours)
	assert.Equal(t, 2, cfg.FetchRetries)
	assert.Equal(t, 1200*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "www.ozon.ru", cfg.OzonHost)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SCHEDULE_HOURS", "21, 9, 9, 15")
	t.Setenv("FETCH_RETRIES", "5")
	t.Setenv("BROWSER_HEADLESS", "false")

	cfg := LoadConfig()

	assert.Equal(t, []int{9, 15, 21}, cfg.ScheduleHours)
	assert.Equal(t, 5, cfg.FetchRetries)
	assert.False(t, cfg.Headless)
}

func TestParseHoursDropsInvalid(t *testing.T) {
	assert.Equal(t, []int{3, 12}, parseHours("12,,abc,3"))
	assert.Empty(t, parseHours(""))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := LoadConfig()

	cfg.ScheduleHours = nil
	assert.Error(t, cfg.Validate())

	cfg.ScheduleHours = []int{25}
	assert.Error(t, cfg.Validate())

	cfg = LoadConfig()
	cfg.FetchRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = LoadConfig()
	cfg.DatabasePath = ""
	assert.Error(t, cfg.Validate())
}
