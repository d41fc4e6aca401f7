package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// DataHome returns a directory path for storing persistent runtime data.
// Creates the directory if needed, per the XDG spec. Can be overridden by
// setting the LLMRT_DATA_HOME environment variable.
func DataHome() (string, error) {
	dataDir := os.Getenv("LLMRT_DATA_HOME")
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return "", fmt.Errorf("creating data directory from LLMRT_DATA_HOME: %w", err)
		}
		return dataDir, nil
	}

	dataDir = filepath.Join(xdg.DataHome, "llmrt")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dataDir, nil
}
