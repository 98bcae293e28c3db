package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user data and config directories.
const AppName = "whispercppkit"

// DefaultModelDirFor returns the models directory for goos without touching the
// environment.
func DefaultModelDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	dataDir, err := dataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

// DefaultConfigFileFor returns where the optional config.yaml is looked up.
func DefaultConfigFileFor(goos, homeDir, xdgConfigHome, appData string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		if xdgConfigHome != "" {
			return filepath.Join(xdgConfigHome, AppName, "config.yaml"), nil
		}
		return filepath.Join(homeDir, ".config", AppName, "config.yaml"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", AppName, "config.yaml"), nil
	case "windows":
		if appData != "" {
			return filepath.Join(appData, AppName, "config.yaml"), nil
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppName, "config.yaml"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

// ResolveModelDir returns override when set and the per-user default otherwise.
func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, dataHome())
}

// ResolveConfigFile returns the default config file path for this user.
func ResolveConfigFile() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultConfigFileFor(runtime.GOOS, homeDir, os.Getenv("XDG_CONFIG_HOME"), os.Getenv("APPDATA"))
}

func dataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("LOCALAPPDATA")
	}
	return os.Getenv("XDG_DATA_HOME")
}

func dataDirFor(goos, homeDir, dataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		if dataHome != "" {
			return filepath.Join(dataHome, AppName), nil
		}
		return filepath.Join(homeDir, ".local", "share", AppName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", AppName), nil
	case "windows":
		if dataHome != "" {
			return filepath.Join(dataHome, AppName), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", AppName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
