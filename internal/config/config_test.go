package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := validate(DefaultConfig()); err != nil {
		t.Fatalf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoad_NoFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if got := Get(); got != cfg {
		t.Fatalf("Get() did not return the loaded config")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}
	t.Setenv("ROUTECODEX_SERVER_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("expected env override to win, got port %d", cfg.Server.Port)
	}
	if ConfigFilePath() != path {
		t.Fatalf("expected ConfigFilePath() to report %q, got %q", path, ConfigFilePath())
	}
}

func TestLoad_RoutingCategoriesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[providers.openai]
name = "OpenAI"
api_base = "https://api.openai.com"
path = "/v1/chat/completions"
protocol = "chat"
auth_type = "apikey"
key_ref = "keyring://routecodex/openai"
models = ["gpt-4o"]
enabled = true

[routing.categories]
short = ["openai.gpt-4o"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.Routing.Categories["short"]
	if len(got) != 1 || got[0] != "openai.gpt-4o" {
		t.Fatalf("unexpected categories.short: %+v", got)
	}
}

func TestLoad_RejectsUnknownProviderInPool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[routing]
default = ["ghost.some-model"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject a pool entry referencing an unknown provider")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got := expandHome("~/.routecodex")
	want := filepath.Join(home, ".routecodex")
	if got != want {
		t.Fatalf("expandHome(~/.routecodex) = %q, want %q", got, want)
	}
	if expandHome("/etc/routecodex") != "/etc/routecodex" {
		t.Fatalf("expandHome should not touch absolute paths without a tilde")
	}
}
