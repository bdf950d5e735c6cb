package server

import (
	"context"
	"testing"

	"github.com/routecodex/routecodex/internal/config"
	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/provider"
)

func TestBuild_DefaultConfigProducesRunnableFactory(t *testing.T) {
	cfg := config.DefaultConfig()
	vlt := fakeKeyResolver{key: "sk-test"}

	factory, rt, err := Build(cfg, vlt, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if factory == nil {
		t.Fatal("expected a non-nil RunnerFactory")
	}
	if rt == nil {
		t.Fatal("expected a non-nil Router")
	}

	r1 := factory()
	r2 := factory()
	if r1 == r2 {
		t.Fatal("expected factory to build a fresh Runner per call, got the same pointer")
	}
}

func TestBuild_RejectsOAuthProviderMissingBlock(t *testing.T) {
	cfg := config.DefaultConfig()
	p := cfg.Providers["qwen"]
	p.OAuth = nil
	cfg.Providers["qwen"] = p

	if _, _, err := Build(cfg, fakeKeyResolver{key: "sk-test"}, nil); err == nil {
		t.Fatal("expected an error when an oauth provider has no oauth block")
	}
}

func TestBuild_RejectsUnknownModelPattern(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Routing.ModelPatterns = append(cfg.Routing.ModelPatterns, config.ModelPatternConfig{
		Pattern:  "(invalid",
		Category: "thinking",
	})

	if _, _, err := Build(cfg, fakeKeyResolver{key: "sk-test"}, nil); err == nil {
		t.Fatal("expected an error for an unparseable model pattern regex")
	}
}

func TestBuildCredential_AnthropicUsesXAPIKeyHeader(t *testing.T) {
	p := config.ProviderConfig{AuthType: "apikey", Protocol: "anthropic", KeyRef: "keyring://routecodex/anthropic"}

	cred, err := buildCredential("anthropic", p, fakeKeyResolver{key: "sk-ant-test"})
	if err != nil {
		t.Fatalf("buildCredential: %v", err)
	}
	headers, err := cred.BuildHeaders(context.Background())
	if err != nil {
		t.Fatalf("BuildHeaders: %v", err)
	}
	if headers["x-api-key"] != "sk-ant-test" {
		t.Fatalf("expected x-api-key header, got %+v", headers)
	}
}

func TestBuildCredential_ChatProviderUsesBearerHeader(t *testing.T) {
	p := config.ProviderConfig{AuthType: "apikey", Protocol: "chat"}
	cred, err := buildCredential("openai-chat", p, fakeKeyResolver{key: "sk-test"})
	if err != nil {
		t.Fatalf("buildCredential: %v", err)
	}
	headers, err := cred.BuildHeaders(context.Background())
	if err != nil {
		t.Fatalf("BuildHeaders: %v", err)
	}
	if headers["Authorization"] != "Bearer sk-test" {
		t.Fatalf("expected bearer auth header, got %+v", headers)
	}
}

func TestParseProtocol(t *testing.T) {
	cases := map[string]pipeline.Protocol{
		"responses": pipeline.ProtocolResponses,
		"anthropic": pipeline.ProtocolAnthropic,
		"chat":      pipeline.ProtocolChat,
		"":          pipeline.ProtocolChat,
	}
	for in, want := range cases {
		if got := parseProtocol(in); got != want {
			t.Errorf("parseProtocol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModelCatalogFrom_FlattensEnabledProvidersOnly(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"a": {Enabled: true, Models: []string{"m1", "m2"}},
			"b": {Enabled: false, Models: []string{"m3"}},
		},
	}
	catalog := ModelCatalogFrom(cfg)()
	want := map[string]bool{"a.m1": true, "a.m2": true}
	if len(catalog) != len(want) {
		t.Fatalf("expected %d models, got %v", len(want), catalog)
	}
	for _, m := range catalog {
		if !want[m] {
			t.Errorf("unexpected model id in catalog: %q", m)
		}
	}
}

func TestBreakerHealth_ReflectsCircuitBreakerState(t *testing.T) {
	breakers := provider.NewBreakerRegistry(1, 0, 1)
	h := breakerHealth{breakers: breakers}

	if !h.Healthy("p1") {
		t.Fatal("expected a fresh breaker to report healthy")
	}
	breakers.Get("p1").RecordFailure()
	if h.Healthy("p1") {
		t.Fatal("expected breaker to report unhealthy after tripping")
	}
}
