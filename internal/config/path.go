// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// DefaultConfigDir returns the directory holding the satwatch config file.
func DefaultConfigDir() string {
	return ExpandPath("~/.config/satwatch")
}

// DefaultDatabasePath returns the default ledger database location.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultConfigDir(), "satwatch.db")
}
