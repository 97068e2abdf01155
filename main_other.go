//go:build !windows

package main

import "log/slog"

// Other platforms ship the rendering surface with the OS.
func ensureWebView2(*slog.Logger) error {
	return nil
}
