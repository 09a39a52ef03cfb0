package sentry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
)

func TestInitialize_EmptyToken(t *testing.T) {
	if err := Initialize(Config{Token: ""}); err != nil {
		t.Errorf("Expected nil error for empty token, got %v", err)
	}
}

func TestInitialize_MissingHost(t *testing.T) {
	if err := Initialize(Config{Token: "test-token", Host: ""}); err == nil {
		t.Error("Expected error when host is missing")
	}
}

func TestInitialize_ValidConfig(t *testing.T) {
	// Sentry uses global state; no t.Parallel.
	err := Initialize(Config{
		Token:       "test-token",
		Host:        "errors.betterstack.com",
		Environment: "test",
		Release:     "dev",
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected IsEnabled() to return true after initialization")
	}

	CaptureException(context.Background(), errors.New("extraction failed"), map[string]string{"operation": "get_timetable"})
	CaptureException(context.Background(), nil, nil)
	Flush(100 * time.Millisecond)
}

func TestSetTag(t *testing.T) {
	// No hub on the context: nothing to tag.
	SetTag(context.Background(), "request_id", "abc")

	hub := sentry.NewHub(nil, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)
	SetTag(ctx, "request_id", "abc")
}
