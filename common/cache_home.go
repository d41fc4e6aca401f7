package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// CacheHome returns a directory path for storing runtime cache data (such
// as the downloaded models.dev catalog). Creates the
// directory if needed, per the XDG spec. Can be overridden by setting the
// LLMRT_CACHE_HOME environment variable.
func CacheHome() (string, error) {
	cacheDir := os.Getenv("LLMRT_CACHE_HOME")
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return "", fmt.Errorf("creating cache directory from LLMRT_CACHE_HOME: %w", err)
		}
		return cacheDir, nil
	}

	cacheDir = filepath.Join(xdg.CacheHome, "llmrt")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	return cacheDir, nil
}
