//go:build windows

package main

import (
	"fmt"
	"log/slog"

	"revix/backend"
)

func ensureWebView2(log *slog.Logger) error {
	preflight := backend.NewWebView2Preflight(log)
	if _, err := preflight.Ensure(); err != nil {
		return fmt.Errorf("WebView2 runtime is not available: %w", err)
	}
	return nil
}
