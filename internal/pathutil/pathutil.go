// Package pathutil expands user-relative paths from config values.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomePath resolves a leading "~" against the current user's home
// directory and cleans the result. Paths without a tilde are cleaned as-is.
func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return filepath.Clean(p)
		}
		if p == "~" {
			return filepath.Clean(home)
		}
		return filepath.Clean(filepath.Join(home, strings.TrimPrefix(p, "~/")))
	}
	return filepath.Clean(p)
}
