package storage

import (
	"os"
	"path/filepath"
)

// PathManager handles cross-platform path resolution for docchat storage
type PathManager struct {
	docchatDir string
}

// NewPathManager creates a new path manager with platform-aware defaults
func NewPathManager() *PathManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir is not available
		homeDir = "."
	}

	return &PathManager{
		docchatDir: filepath.Join(homeDir, ".docchat"),
	}
}

// NewPathManagerAt creates a path manager rooted at an explicit data
// directory, used when the config overrides the default location.
func NewPathManagerAt(dataDir string) *PathManager {
	pm := NewPathManager()
	if dataDir != "" {
		pm.docchatDir = dataDir
	}
	return pm
}

// GetDocchatDir returns the main docchat data directory, creating it if it
// doesn't exist.
func (pm *PathManager) GetDocchatDir() (string, error) {
	if err := os.MkdirAll(pm.docchatDir, 0755); err != nil {
		return "", err
	}
	return pm.docchatDir, nil
}

// GetEmbeddedDatabasePath returns the path for the embedded store database
func (pm *PathManager) GetEmbeddedDatabasePath() (string, error) {
	dir, err := pm.GetDocchatDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docchat.db"), nil
}
