package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBaseURL matches the serve-fake listen address.
const DefaultBaseURL = "http://127.0.0.1:8099"

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - HBK_CONFIG_PATH: config file location (default: ~/.config/hbk.toml)
//   - HBK_HOME: base directory for hbk data (default: ~/.local/share/hbk)
//   - HBK_BASE_URL: backend API address written by config init
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	baseURL := os.Getenv("HBK_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"base_url":     baseURL,
		"log_dir":      filepath.Join(baseDir, "log"),
		"journal_dir":  filepath.Join(baseDir, "journal"),
		"download_dir": filepath.Join(baseDir, "downloads"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("HBK_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hbk.toml"), nil
}

// getBaseDir follows the XDG data layout unless HBK_HOME is set.
func getBaseDir() (string, error) {
	if path := os.Getenv("HBK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "hbk"), nil
}
