package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// StateHome returns a directory path for storing runtime state data (logs,
// conversation state, etc). It creates the directory if needed, per the XDG
// spec. Can be overridden by setting the LLMRT_STATE_HOME environment
// variable.
func StateHome() (string, error) {
	stateDir := os.Getenv("LLMRT_STATE_HOME")
	if stateDir != "" {
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return "", fmt.Errorf("creating state directory from LLMRT_STATE_HOME: %w", err)
		}
		return stateDir, nil
	}

	stateDir = filepath.Join(xdg.StateHome, "llmrt")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return stateDir, nil
}
