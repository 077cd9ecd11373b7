package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const envToolrtCachePath = "TOOLUNIVERSE_CACHE_PATH"

// resolveCachePath expands configuredPath, falling back to
// ~/.toolrt/cache.db when both the config value and the environment
// override are empty, mirroring cmd/buckley/paths.go's
// resolveDBPath/expandHomePath pair.
func resolveCachePath(configuredPath string) (string, error) {
	if path := strings.TrimSpace(os.Getenv(envToolrtCachePath)); path != "" {
		return expandHomePath(path)
	}
	if path := strings.TrimSpace(configuredPath); path != "" {
		return expandHomePath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".toolrt", "cache.db"), nil
}

func expandHomePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}

	return path, nil
}
