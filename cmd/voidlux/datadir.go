// ABOUTME: XDG-based data directory resolution for the voidlux node.
// ABOUTME: Checks XDG_DATA_HOME, falls back to ~/.local/share/voidlux.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the default data directory for a node's persistent
// state (its SQLite file and node-identity record).
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "voidlux"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "voidlux"), nil
}

func resolveDataDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return defaultDataDir()
}
