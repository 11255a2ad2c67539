package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/squirrel/internal/config"
)

// defaultConfigPath is <user config dir>/squirrel/config.toml, or "" when
// the platform has no such directory.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "squirrel", "config.toml")
}

// loadConfig loads path when set. Otherwise it loads the default location
// if a file exists there and falls back to built-in defaults. It returns
// the file actually used, "" for none.
func loadConfig(path string) (config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, "", err
		}
		return cfg, path, nil
	}

	fallback := defaultConfigPath()
	if fallback == "" {
		return config.Default(), "", nil
	}
	if _, err := os.Stat(fallback); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
		return config.Config{}, "", fmt.Errorf("stat %s: %w", fallback, err)
	}
	cfg, err := config.Load(fallback)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, fallback, nil
}
