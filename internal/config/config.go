// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Reddit API
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditUserAgent    string

	// Cron
	CronSecret string

	// Sync
	StalenessWindow time.Duration
	ListingLimit    int

	// Backfill
	BackfillPageDelay time.Duration
	BackfillMaxPages  int
	BackfillMaxPosts  int

	// Sweep
	SweepInterval     time.Duration
	SweepEntityDelay  time.Duration
	SweepListingLimit int

	// Upstream client
	UpstreamTimeout           time.Duration
	UpstreamMaxRetries        int
	UpstreamRequestsPerMinute int

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	required := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"REDDIT_CLIENT_ID", &cfg.RedditClientID},
		{"REDDIT_CLIENT_SECRET", &cfg.RedditClientSecret},
		{"REDDIT_USERNAME", &cfg.RedditUsername},
		{"REDDIT_PASSWORD", &cfg.RedditPassword},
		{"REDDIT_USER_AGENT", &cfg.RedditUserAgent},
		{"CRON_SECRET", &cfg.CronSecret},
	}

	for _, r := range required {
		*r.dst = os.Getenv(r.key)
		if *r.dst == "" {
			missing = append(missing, r.key)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StalenessWindow = getEnvDuration("STALENESS_WINDOW", 60*time.Minute)
	cfg.ListingLimit = getEnvInt("LISTING_LIMIT", 50)
	cfg.BackfillPageDelay = getEnvDuration("BACKFILL_PAGE_DELAY", 2*time.Second)
	cfg.BackfillMaxPages = getEnvInt("BACKFILL_MAX_PAGES", 2)
	cfg.BackfillMaxPosts = getEnvInt("BACKFILL_MAX_POSTS", 1000)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 10*time.Minute)
	cfg.SweepEntityDelay = getEnvDuration("SWEEP_ENTITY_DELAY", 1500*time.Millisecond)
	cfg.SweepListingLimit = getEnvInt("SWEEP_LISTING_LIMIT", 25)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.UpstreamMaxRetries = getEnvInt("UPSTREAM_MAX_RETRIES", 3)
	cfg.UpstreamRequestsPerMinute = getEnvInt("UPSTREAM_REQUESTS_PER_MINUTE", 60)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
