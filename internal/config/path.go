package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "bettervoice"

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", appDir, "config.jsonc"), nil
}

// DefaultLearningPath is $XDG_DATA_HOME/bettervoice/learning.db, falling back
// to ~/.local/share.
func DefaultLearningPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, "learning.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for learning store")
	}
	return filepath.Join(home, ".local", "share", appDir, "learning.db"), nil
}

// envFilePath is the optional .env file read next to the config file.
func envFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}
