// Package config provides application configuration management.
// It loads settings from environment variables (optionally via a .env file)
// and an optional TOML schedule file holding the group vocabulary and the
// shortened-day timetable.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default source pages.
const (
	DefaultDirectoryURL          = "https://plan.zse.bydgoszcz.pl/lista.html"
	DefaultPlansURL              = "https://plan.zse.bydgoszcz.pl/plany/"
	DefaultSubstitutionsURL      = "https://zastepstwa.zse.bydgoszcz.pl"
	DefaultEncoding              = "utf-8"
	DefaultSubstitutionsEncoding = "iso-8859-2"
)

// DefaultGroups is the group vocabulary used when none is configured.
var DefaultGroups = []string{"1/3", "2/3", "3/3", "1/2", "2/2", "1/1", "j1", "j2"}

// Source is an upstream page location and the charset its HTML is served in.
type Source struct {
	URL      string
	Encoding string
}

// Ready reports whether both the URL and the encoding are set.
func (s Source) Ready() bool {
	return s.URL != "" && s.Encoding != ""
}

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Source pages. A source left empty is not a startup error: requests that
	// need it fail with a missing-configuration error instead.
	Directory     Source // list of sections, teachers and rooms
	Plans         Source // base URL of per-entity plan pages ("<id>.html")
	Substitutions Source // daily substitution notice

	// Schedule
	Groups        []string       // group tag vocabulary, in match order
	ShortSchedule map[int]string // slot number -> "HH:MM-HH:MM" on shortened days
	ScheduleFile  string         // optional TOML file overriding Groups and ShortSchedule

	// Scraper Configuration
	ScraperTimeout     time.Duration
	ScraperConcurrency int
	UserAgent          string // empty = "Atom API/<version>"

	// Per-client API rate limit; PerMinute 0 disables it
	RateLimitPerMinute float64
	RateLimitBurst     float64

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // empty = no auth

	// Sentry
	SentryToken       string
	SentryHost        string
	SentryEnvironment string
	SentrySampleRate  float64

	// Better Stack logging
	BetterStackToken    string
	BetterStackEndpoint string
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),

		Directory: Source{
			URL:      lookupEnv(EnvDirectoryURL, DefaultDirectoryURL),
			Encoding: lookupEnv(EnvDirectoryEncoding, DefaultEncoding),
		},
		Plans: Source{
			URL:      lookupEnv(EnvPlansURL, DefaultPlansURL),
			Encoding: lookupEnv(EnvPlansEncoding, DefaultEncoding),
		},
		Substitutions: Source{
			URL:      lookupEnv(EnvSubstitutionsURL, DefaultSubstitutionsURL),
			Encoding: lookupEnv(EnvSubstitutionsEncoding, DefaultSubstitutionsEncoding),
		},

		Groups:       getListEnv(EnvGroups, DefaultGroups),
		ScheduleFile: getEnv(EnvScheduleFile, ""),

		ScraperTimeout:     getDurationEnv(EnvScraperTimeout, ScraperRequest),
		ScraperConcurrency: getIntEnv(EnvScraperConcurrency, ScraperConcurrency),
		UserAgent:          getEnv(EnvUserAgent, ""),

		RateLimitPerMinute: getFloatEnv(EnvRateLimitPerMinute, RateLimitPerMinute),
		RateLimitBurst:     getFloatEnv(EnvRateLimitBurst, RateLimitBurst),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		SentryToken:       getEnv(EnvSentryToken, ""),
		SentryHost:        getEnv(EnvSentryHost, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}

	shortSchedule, err := ParseShortSchedule(getEnv(EnvShortSchedule, ""))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvShortSchedule, err)
	}
	cfg.ShortSchedule = shortSchedule

	if cfg.ScheduleFile != "" {
		schedule, err := LoadSchedule(cfg.ScheduleFile)
		if err != nil {
			return nil, fmt.Errorf("schedule file: %w", err)
		}
		if err := schedule.Apply(cfg); err != nil {
			return nil, fmt.Errorf("schedule file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.ScraperTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_TIMEOUT must be positive, got %v", c.ScraperTimeout))
	}
	if c.ScraperConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_CONCURRENCY must be positive, got %d", c.ScraperConcurrency))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %v", c.RateLimitPerMinute))
	}
	if c.RateLimitPerMinute > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be at least 1, got %v", c.RateLimitBurst))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("SENTRY_SAMPLE_RATE must be within [0, 1], got %v", c.SentrySampleRate))
	}
	if c.SentryToken != "" && c.SentryHost == "" {
		errs = append(errs, errors.New("SENTRY_HOST is required when SENTRY_TOKEN is set"))
	}
	for slot, hours := range c.ShortSchedule {
		if slot < 0 {
			errs = append(errs, fmt.Errorf("short schedule slot must not be negative, got %d", slot))
		}
		if hours == "" {
			errs = append(errs, fmt.Errorf("short schedule slot %d has no time range", slot))
		}
	}

	return errors.Join(errs...)
}

// ParseShortSchedule parses "1=8:00-8:30,2=8:35-9:05" into a slot map.
// An empty string yields an empty map.
func ParseShortSchedule(value string) (map[int]string, error) {
	schedule := make(map[int]string)
	for entry := range strings.SplitSeq(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		slot, hours, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q: want <slot>=<from>-<to>", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(slot))
		if err != nil {
			return nil, fmt.Errorf("entry %q: slot: %w", entry, err)
		}
		schedule[n] = strings.TrimSpace(hours)
	}
	return schedule, nil
}

// ShortScheduleSlots returns the configured slot numbers in ascending order.
func (c *Config) ShortScheduleSlots() []int {
	slots := make([]int, 0, len(c.ShortSchedule))
	for slot := range c.ShortSchedule {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is like getEnv but an explicitly empty variable wins over the
// default, so a source can be switched off.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping blank items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
