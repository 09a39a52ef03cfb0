// Package config provides centralized timeout constants for the application.
//
// A single API request may fetch the directory page, the requested plan and,
// for room plans, one teacher-recovery page per unresolved slot. Fetches are
// bounded individually by ScraperRequest and collectively by the HTTP write
// timeout.
package config

import "time"

// Scraper timeouts
const (
	// ScraperRequest is the timeout for a single page fetch, including the
	// wait for a limiter slot.
	ScraperRequest = 10 * time.Second

	// ScraperConcurrency is the default number of fetches allowed in flight
	// across the whole process.
	ScraperConcurrency = 10
)

// API rate limit defaults, per client IP
const (
	RateLimitPerMinute = 60
	RateLimitBurst     = 20

	// RateLimitCleanup is how often idle clients are forgotten.
	RateLimitCleanup = 5 * time.Minute
)

// HTTP server timeouts
const (
	HTTPRead  = 10 * time.Second
	HTTPWrite = 120 * time.Second
	HTTPIdle  = 120 * time.Second
)

// Health checks
const (
	// ReadinessCheckTimeout bounds the readiness probe's upstream check.
	ReadinessCheckTimeout = 5 * time.Second

	// HealthcheckTimeout is used by the container healthcheck binary.
	HealthcheckTimeout = 3 * time.Second
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second

	// SentryFlush bounds how long buffered error events may delay exit.
	SentryFlush = 2 * time.Second
)
