package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// GetUserAppDataDir returns (and creates) the per-user state directory of
// appName. On Linux XDG_CONFIG_HOME wins over ~/.config.
func GetUserAppDataDir(appName string) (string, error) {
	var base string

	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			base = filepath.Join(home, "Library", "Application Support")
		}
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			if home := os.Getenv("HOME"); home != "" {
				base = filepath.Join(home, ".config")
			}
		}
	}

	if base == "" {
		return "", fmt.Errorf("could not determine base config path")
	}

	appDataPath := filepath.Join(base, appName)
	if err := EnsureDir(appDataPath); err != nil {
		return "", fmt.Errorf("failed to create app data dir: %w", err)
	}

	return appDataPath, nil
}

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
