// Package testutil provides common test utilities for the go-talkbot
// library: a shared debug logger and polling helpers for asynchronous
// assertions.
package testutil

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"
)

var (
	// Default logger for tests
	defaultSlogHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	DefaultLogger = slog.New(defaultSlogHandler)
)

// WaitFor polls cond every 10ms until it returns true or the timeout
// passes. It returns an error describing what was waited on if the
// condition never held.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) error {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %v waiting for %s", timeout, what)
}

// RequireWithin is WaitFor with a test failure instead of a returned error.
func RequireWithin(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	if err := WaitFor(t, timeout, what, cond); err != nil {
		t.Fatal(err)
	}
}
