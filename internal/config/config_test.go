package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.Weather.BaseURL != "https://wttr.in" {
		t.Errorf("Weather.BaseURL = %q", cfg.Weather.BaseURL)
	}
	if cfg.Reminders.PollInterval != "60s" {
		t.Errorf("Reminders.PollInterval = %q", cfg.Reminders.PollInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestFileValuesApply(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 9999,
  "llm.model": "test/model",
  "reminders.poll_interval": "5s"
}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.LLM.Model != "test/model" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.PollInterval().Seconds() != 5 {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 9999}`)
	t.Setenv("COMPANION_SERVER_PORT", "8888")
	t.Setenv("COMPANION_LLM_API_KEY", "env-secret")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("Server.Port = %d, want env override 8888", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-secret" {
		t.Errorf("LLM.APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestInvalidPollIntervalRejected(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"reminders.poll_interval": "whenever"}`)

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for unparseable poll interval")
	}
}

func TestSecretsNotReadFromFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"llm.api_key": "file-secret"}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, secrets must come from the environment", cfg.LLM.APIKey)
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	b := writeTempConfig(t, "")

	if err := setKeyWith(b, "llm.model", "another/model"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	v, ok, err := b.GetString("llm.model")
	if err != nil || !ok || v != "another/model" {
		t.Errorf("GetString = %q ok=%v err=%v", v, ok, err)
	}
}

func TestSetKeyRejectsSecretsAndUnknown(t *testing.T) {
	b := writeTempConfig(t, "")

	if err := setKeyWith(b, "llm.api_key", "x"); err == nil {
		t.Error("setting a secret key must fail")
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("setting an unknown key must fail")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	for _, info := range ShowAll(defaults()) {
		if info.Key == "llm.api_key" || info.Key == "server.auth_token" {
			t.Errorf("ShowAll exposed secret key %s", info.Key)
		}
	}
}
