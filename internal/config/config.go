package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"docchat/internal/storage"
)

// Config holds application-level configuration: defaults and environment
// overrides that seed the persisted Settings object on first run. The live
// Settings themselves are owned by the storage layer.
type Config struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"baseUrl"`
	Temperature float64 `json:"temperature"`
	DataDir     string  `json:"dataDir"`
	Debug       bool    `json:"debug"`
}

// Load reads configuration from the optional config file plus DOCCHAT_*
// environment variables.
func Load(configPath string, debug bool) (*Config, error) {
	v := viper.New()

	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "gemini-2.0-flash")
	v.SetDefault("baseUrl", "")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("dataDir", "")

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".docchat"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; everything has defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if configPath != "" {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			log.Printf("Ignoring unreadable config file, using defaults: %v", err)
		}
	}

	cfg := &Config{
		Provider:    v.GetString("provider"),
		Model:       v.GetString("model"),
		BaseURL:     v.GetString("baseUrl"),
		Temperature: v.GetFloat64("temperature"),
		DataDir:     v.GetString("dataDir"),
		Debug:       debug,
	}

	return cfg, nil
}

// DefaultSettings builds the Settings object persisted on first run, before
// the user has saved anything.
func (c *Config) DefaultSettings() *storage.Settings {
	return &storage.Settings{
		Provider:    c.Provider,
		APIKey:      APIKeyForProvider(c.Provider),
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
		StorageMode: storage.StorageModeEmbedded,
		Image: storage.ImageConfig{
			Enabled: false,
		},
	}
}

// APIKeyForProvider returns the API key for a provider from the
// conventional environment variables.
func APIKeyForProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini", "google":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return ""
	}
}
