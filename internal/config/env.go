// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "ATOM_PORT"
	EnvLogLevel        = "ATOM_LOG_LEVEL"
	EnvShutdownTimeout = "ATOM_SHUTDOWN_TIMEOUT"

	// Source pages
	EnvDirectoryURL          = "ATOM_DIRECTORY_URL"
	EnvDirectoryEncoding     = "ATOM_DIRECTORY_ENCODING"
	EnvPlansURL              = "ATOM_PLANS_URL"
	EnvPlansEncoding         = "ATOM_PLANS_ENCODING"
	EnvSubstitutionsURL      = "ATOM_SUBSTITUTIONS_URL"
	EnvSubstitutionsEncoding = "ATOM_SUBSTITUTIONS_ENCODING"
	EnvGroups                = "ATOM_GROUPS"
	EnvShortSchedule         = "ATOM_SHORT_SCHEDULE"
	EnvScheduleFile          = "ATOM_SCHEDULE_FILE"

	// Scraper
	EnvScraperTimeout     = "ATOM_SCRAPER_TIMEOUT"
	EnvScraperConcurrency = "ATOM_SCRAPER_CONCURRENCY"
	EnvUserAgent          = "ATOM_USER_AGENT"

	// API rate limit
	EnvRateLimitPerMinute = "ATOM_RATE_LIMIT_PER_MINUTE"
	EnvRateLimitBurst     = "ATOM_RATE_LIMIT_BURST"

	// Sentry Feature
	EnvSentryToken       = "ATOM_SENTRY_TOKEN"
	EnvSentryHost        = "ATOM_SENTRY_HOST"
	EnvSentryEnvironment = "ATOM_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "ATOM_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "ATOM_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "ATOM_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "ATOM_METRICS_USERNAME"
	EnvMetricsPassword = "ATOM_METRICS_PASSWORD"
)
