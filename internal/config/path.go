// Package config resolves chargemap settings and file locations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MemoryDatabase is SQLite's name for a private in-memory database.
const MemoryDatabase = ":memory:"

// DefaultDatabasePath returns the database location used when none is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "chargemap.db")
	}
	return filepath.Join(home, ".local", "share", "chargemap", "chargemap.db")
}

// ExpandPath expands a leading ~ and $VAR references in path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return os.ExpandEnv(path)
}

// ResolveDatabasePath expands path and makes it absolute, so the database
// does not move with the working directory. MemoryDatabase is kept as is and
// a blank path resolves to "".
func ResolveDatabasePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == MemoryDatabase {
		return path, nil
	}

	abs, err := filepath.Abs(ExpandPath(path))
	if err != nil {
		return "", fmt.Errorf("resolve database path %q: %w", path, err)
	}
	return abs, nil
}
