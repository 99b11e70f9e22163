package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds bridge configuration
type Config struct {
	PublicDir        string  `json:"public_dir"`
	CacheDir         string  `json:"cache_dir"`
	DefaultVolume    float64 `json:"default_volume"`
	FadeMusic        bool    `json:"fade_music"`
	ShowNotification bool    `json:"show_notification"`
	Focus            bool    `json:"focus"`
	Background       bool    `json:"background"`
	IgnoreSilent     bool    `json:"ignore_silent"`
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	cacheDir := ".cache/audiobridge"
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "audiobridge")
	}
	return &Config{
		PublicDir:        "public",
		CacheDir:         cacheDir,
		DefaultVolume:    1.0,
		FadeMusic:        false,
		ShowNotification: false,
		Focus:            false,
		Background:       false,
		IgnoreSilent:     true,
	}
}

// LoadConfig reads and unmarshals configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GetDefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// SaveConfig marshals and saves configuration to file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadOrCreate loads config from path or creates default if not exists
func LoadOrCreate(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(config, path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	config.ApplyEnv()
	return config, nil
}

// ApplyEnv overlays environment variables onto the loaded config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("AUDIOBRIDGE_PUBLIC_DIR"); v != "" {
		c.PublicDir = v
	}
	if v := os.Getenv("AUDIOBRIDGE_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("AUDIOBRIDGE_DEFAULT_VOLUME"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultVolume = f
		}
	}
	if v := os.Getenv("AUDIOBRIDGE_FADE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FadeMusic = b
		}
	}
	if v := os.Getenv("AUDIOBRIDGE_NOTIFICATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ShowNotification = b
		}
	}
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	if path := os.Getenv("AUDIOBRIDGE_CONFIG"); path != "" {
		return path
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "audiobridge", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(home, ".config", "audiobridge", "config.json")
}
