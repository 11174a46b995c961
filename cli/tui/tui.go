package tui

import (
	"fmt"
	"strings"
)

// Run starts the TUI for the given view type. Returns an error for
// view types that don't support interactive mode.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	if strings.HasPrefix(viewType, "inspect_") {
		return RunInspectTUI(viewType, data)
	}
	if viewType == "stats" {
		return RunStatsTUI(data)
	}

	return fmt.Errorf("unknown view type: %s", viewType)
}

// IsTUISupported reports whether the view type has an interactive
// rendering. TUI is opt-in and read-only: only stats and inspect views
// qualify.
func IsTUISupported(viewType string) bool {
	if viewType == "stats" {
		return true
	}
	return strings.HasPrefix(viewType, "inspect_")
}

// SupportedTUIViews returns the view types that support TUI mode.
func SupportedTUIViews() []string {
	return []string{
		"stats",
		"inspect_webhook",
	}
}
