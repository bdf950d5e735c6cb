package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/tmp/test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := validate(validConfig()); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assertInvalid(t, cfg, "server.port")
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "verbose"
	assertInvalid(t, cfg, "server.log_level")
}

func TestValidate_RequiresCertAndKeyWhenTLSEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLSEnabled = true
	assertInvalid(t, cfg, "cert_file")
}

func TestValidate_RequiresKeyRefForAPIKeyProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["openai"] = ProviderConfig{APIBase: "https://api.openai.com", AuthType: "apikey", Enabled: true}
	assertInvalid(t, cfg, "key_ref")
}

func TestValidate_RequiresOAuthFieldsForOAuthProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["qwen"] = ProviderConfig{APIBase: "https://dashscope.aliyuncs.com", AuthType: "oauth", Enabled: true}
	assertInvalid(t, cfg, "oauth")
}

func TestValidate_AcceptsCompleteOAuthProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["qwen"] = ProviderConfig{
		APIBase:  "https://dashscope.aliyuncs.com",
		Path:     "/v1/chat/completions",
		Protocol: "chat",
		AuthType: "oauth",
		Enabled:  true,
		OAuth: &ProviderOAuthConfig{
			ClientID:      "abc123",
			DeviceCodeURL: "https://dashscope.aliyuncs.com/device/code",
			TokenURL:      "https://dashscope.aliyuncs.com/token",
		},
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected complete oauth provider to validate, got %v", err)
	}
}

func TestValidate_RejectsPoolEntryReferencingUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.Categories = map[string][]string{"short": {"ghost.some-model"}}
	assertInvalid(t, cfg, "unknown provider")
}

func TestValidate_RejectsPoolEntryReferencingDisabledProvider(t *testing.T) {
	cfg := validConfig()
	p := cfg.Providers["openai-chat"]
	p.Enabled = false
	cfg.Providers["openai-chat"] = p
	cfg.Routing.Default = []string{"openai-chat.gpt-4o"}
	assertInvalid(t, cfg, "disabled provider")
}

func TestValidate_RejectsMisorderedThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.Thresholds = ThresholdsConfig{Short: 9000, Medium: 8000, Long: 32000, LongContext: 24000}
	assertInvalid(t, cfg, "thresholds.short")
}

func TestValidate_RejectsUncompilableModelPattern(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.ModelPatterns = []ModelPatternConfig{{Pattern: "(unclosed", Category: "thinking"}}
	assertInvalid(t, cfg, "does not compile")
}

func TestValidate_RejectsInvalidCBFailureThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Resilience.CBFailureThreshold = 0
	assertInvalid(t, cfg, "cb_failure_threshold")
}

func TestValidate_RejectsBadSnapshotSink(t *testing.T) {
	cfg := validConfig()
	cfg.Snapshot.Enabled = true
	cfg.Snapshot.Sink = "kafka"
	assertInvalid(t, cfg, "snapshot.sink")
}

func assertInvalid(t *testing.T, cfg *Config, substr string) {
	t.Helper()
	err := validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got: %v", substr, err)
	}
}
