package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{
			name:     "ErrMissingConfiguration is recognized",
			err:      ErrMissingConfiguration,
			checkFn:  IsMissingConfiguration,
			expected: true,
		},
		{
			name:     "Joined ErrInvalidIdentifier is recognized",
			err:      errors.Join(ErrInvalidIdentifier, errors.New("additional context")),
			checkFn:  IsInvalidIdentifier,
			expected: true,
		},
		{
			name:     "Wrapped ErrSourceUnavailable is recognized",
			err:      fmt.Errorf("fetch directory: %w", ErrSourceUnavailable),
			checkFn:  IsSourceUnavailable,
			expected: true,
		},
		{
			name:     "Different error is not ErrInternal",
			err:      ErrInvalidIdentifier,
			checkFn:  IsInternal,
			expected: false,
		},
		{
			name:     "ErrInternal is recognized",
			err:      ErrInternal,
			checkFn:  IsInternal,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.checkFn(tt.err)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", NewScraperError("https://example.com", 0, context.DeadlineExceeded), true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutError{}}, true},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestScraperError(t *testing.T) {
	baseErr := errors.New("unexpected status")
	err := NewScraperError("https://plan.example.com/plany/o1.html", 404, baseErr)

	if err.URL != "https://plan.example.com/plany/o1.html" {
		t.Errorf("unexpected URL %q", err.URL)
	}

	if err.StatusCode != 404 {
		t.Errorf("expected status code 404, got %d", err.StatusCode)
	}

	if !errors.Is(err, baseErr) {
		t.Error("expected error to wrap base error")
	}

	expected := "scraper error (url=https://plan.example.com/plany/o1.html, status=404): unexpected status"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	err2 := NewScraperError("https://plan.example.com", 0, baseErr)
	if err2.Error() != "scraper error (url=https://plan.example.com): unexpected status" {
		t.Errorf("unexpected message %q", err2.Error())
	}
}
