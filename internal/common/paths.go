package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File permission constants
const (
	FilePermissionSecure = 0600
	FilePermissionNormal = 0644
	DirPermissionSecure  = 0700
)

// CleanPath cleans a user supplied path and makes it absolute. Paths that
// still contain a parent reference after cleaning are rejected.
func CleanPath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains directory traversal")
	}

	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// HomeDir returns the per-user state directory (~/.hcahps)
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hcahps"
	}
	return filepath.Join(home, ".hcahps")
}
