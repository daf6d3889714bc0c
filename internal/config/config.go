// Package config loads daemon configuration from a JSON file and
// COMPANION_* environment variables.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Weather   WeatherConfig
	Storage   StorageConfig
	Reminders RemindersConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port      int
	AuthToken string
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type WeatherConfig struct {
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type RemindersConfig struct {
	// PollInterval is a Go duration string, e.g. "60s".
	PollInterval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-2.5-flash",
		},
		Weather: WeatherConfig{
			BaseURL: "https://wttr.in",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Reminders: RemindersConfig{
			PollInterval: "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/companion/config.json, then applies COMPANION_*
// environment overrides. The LLM API key can only come from the
// environment; the chat surface degrades gracefully without it.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if _, err := time.ParseDuration(cfg.Reminders.PollInterval); err != nil {
		return Config{}, fmt.Errorf("invalid reminders.poll_interval %q: %w", cfg.Reminders.PollInterval, err)
	}

	return cfg, nil
}

// PollInterval returns the parsed reminder poll interval. Load validates
// the string, so this cannot fail after a successful Load.
func (c Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Reminders.PollInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
