// Package paths resolves cardsmith's per-user directories.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "cardsmith"

// ConfigDir returns ~/.config/cardsmith, falling back to ./.cardsmith when
// the home directory is unknown.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "." + appName
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns ~/.cardsmith, the default root for history and traces.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

// Expand replaces a leading "~" with the user's home directory and cleans
// the result. Empty input stays empty.
func Expand(p string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Clean(p)
}
