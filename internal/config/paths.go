package config

import (
	"os"
	"path/filepath"
)

const appDirName = "restbridge"

// Dir returns the per-user config directory, honoring
// RESTBRIDGE_CONFIG_DIR for tests and portable setups.
func Dir() string {
	if override := os.Getenv("RESTBRIDGE_CONFIG_DIR"); override != "" {
		return override
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "." + appDirName
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDirName)
}

func HistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

func StoreDir() string {
	return filepath.Join(Dir(), "store")
}
