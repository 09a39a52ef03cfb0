// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors returned by the service layer.
// Use errors.Is() to check these errors in your code.
var (
	// ErrMissingConfiguration indicates a required source URL or encoding is not configured.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrInvalidIdentifier indicates the requested identifier is malformed or unknown.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrSourceUnavailable indicates the upstream page did not answer in time.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInternal indicates extraction failed for an unexpected reason.
	ErrInternal = errors.New("internal processing error")
)

// IsMissingConfiguration reports whether err is ErrMissingConfiguration.
func IsMissingConfiguration(err error) bool {
	return errors.Is(err, ErrMissingConfiguration)
}

// IsInvalidIdentifier reports whether err is ErrInvalidIdentifier.
func IsInvalidIdentifier(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier)
}

// IsSourceUnavailable reports whether err is ErrSourceUnavailable.
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsInternal reports whether err is ErrInternal.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// IsTimeout reports whether err was caused by a deadline: an expired context
// or a network operation that timed out.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ScraperError represents web scraping failures with context.
type ScraperError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ScraperError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scraper error (url=%s, status=%d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("scraper error (url=%s): %v", e.URL, e.Err)
}

func (e *ScraperError) Unwrap() error {
	return e.Err
}

// NewScraperError creates a new scraper error.
func NewScraperError(url string, statusCode int, err error) *ScraperError {
	return &ScraperError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}
