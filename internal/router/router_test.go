package router

import (
	"regexp"
	"testing"

	"github.com/routecodex/routecodex/internal/pipeline"
)

func TestClassify_SizeBuckets(t *testing.T) {
	// Under the default thresholds, "very_long" (>=32000 tokens) is never
	// reached directly: the longcontext override at 24000 tokens always
	// intercepts it first. See TestClassify_VeryLongReachableWithHigherLongContextThreshold.
	c := NewClassifier(nil, nil)
	cases := []struct {
		text string
		want Category
	}{
		{text: "hi", want: CategoryShort},
		{text: repeatWords(2500), want: CategoryMedium},
		{text: repeatWords(10000), want: CategoryLong},
	}
	for _, tc := range cases {
		req := &pipeline.Request{Model: "gpt-4o", Messages: []pipeline.Message{{Role: "user", Content: tc.text}}}
		if got := c.Classify(req); got != tc.want {
			t.Errorf("Classify(%d chars) = %v, want %v", len(tc.text), got, tc.want)
		}
	}
}

func TestClassify_VeryLongReachableWithHigherLongContextThreshold(t *testing.T) {
	c := NewClassifier(nil, nil)
	c.Thresholds = Thresholds{Short: 1000, Medium: 8000, Long: 32000, LongContext: 100000}
	req := &pipeline.Request{Model: "gpt-4o", Messages: []pipeline.Message{{Role: "user", Content: repeatWords(40000)}}}
	if got := c.Classify(req); got != CategoryVeryLong {
		t.Fatalf("expected very_long once longcontext threshold is raised above it, got %v", got)
	}
}

func TestClassify_LongContextOverridesEverything(t *testing.T) {
	c := NewClassifier(nil, nil)
	req := &pipeline.Request{
		Model:    "gpt-4o",
		Messages: []pipeline.Message{{Role: "user", Content: repeatWords(30000)}},
		Tools:    []pipeline.Tool{{Name: "web_search"}},
	}
	if got := c.Classify(req); got != CategoryLongContext {
		t.Fatalf("expected longcontext to override webSearch, got %v", got)
	}
}

func TestClassify_WebSearchTool(t *testing.T) {
	c := NewClassifier(nil, nil)
	req := &pipeline.Request{
		Model:    "gpt-4o",
		Messages: []pipeline.Message{{Role: "user", Content: "hi"}},
		Tools:    []pipeline.Tool{{Name: "web_search"}},
	}
	if got := c.Classify(req); got != CategoryWebSearch {
		t.Fatalf("expected webSearch, got %v", got)
	}
}

func TestClassify_ThinkingFlag(t *testing.T) {
	c := NewClassifier(nil, nil)
	req := &pipeline.Request{
		Model:    "gpt-4o",
		Messages: []pipeline.Message{{Role: "user", Content: "hi"}},
		Metadata: map[string]interface{}{"thinking": true},
	}
	if got := c.Classify(req); got != CategoryThinking {
		t.Fatalf("expected thinking, got %v", got)
	}
}

func TestClassify_ModelPatternOverride(t *testing.T) {
	c := NewClassifier(nil, []ModelPattern{{Pattern: regexp.MustCompile(`^claude-.*-thinking$`), Category: CategoryThinking}})
	req := &pipeline.Request{Model: "claude-opus-4-thinking", Messages: []pipeline.Message{{Role: "user", Content: "hi"}}}
	if got := c.Classify(req); got != CategoryThinking {
		t.Fatalf("expected model pattern override to thinking, got %v", got)
	}
}

func TestPool_RoundRobinSkipsUnhealthy(t *testing.T) {
	pool, err := NewPool([]string{"openai.gpt-4o", "anthropic.claude-3-opus", "qwen.qwen-max"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	health := fakeHealth{"anthropic": false}

	first, ok := pool.Next(health)
	if !ok || first.ProviderID != "openai" {
		t.Fatalf("expected openai first, got %+v ok=%v", first, ok)
	}
	second, ok := pool.Next(health)
	if !ok || second.ProviderID != "qwen" {
		t.Fatalf("expected anthropic skipped in favor of qwen, got %+v", second)
	}
}

func TestPool_AllUnhealthyReturnsFalse(t *testing.T) {
	pool, _ := NewPool([]string{"openai.gpt-4o"})
	_, ok := pool.Next(fakeHealth{"openai": false})
	if ok {
		t.Fatalf("expected no healthy entry")
	}
}

func TestParsePipelineRef_DefaultsKeyID(t *testing.T) {
	ref, err := ParsePipelineRef("openai.gpt-4o")
	if err != nil {
		t.Fatalf("ParsePipelineRef: %v", err)
	}
	if ref.KeyID != "default" || ref.ProviderID != "openai" || ref.ModelID != "gpt-4o" {
		t.Fatalf("unexpected parse: %+v", ref)
	}
}

func TestParsePipelineRef_ExplicitKeyID(t *testing.T) {
	ref, err := ParsePipelineRef("openai.gpt-4o.backup-key")
	if err != nil {
		t.Fatalf("ParsePipelineRef: %v", err)
	}
	if ref.KeyID != "backup-key" {
		t.Fatalf("expected explicit keyId, got %q", ref.KeyID)
	}
}

func TestParsePipelineRef_Invalid(t *testing.T) {
	if _, err := ParsePipelineRef("justoneword"); err == nil {
		t.Fatalf("expected error for malformed pipeline ref")
	}
}

func TestNewRouter_RejectsUnknownProvider(t *testing.T) {
	cfg := Config{
		Pools:          map[Category][]string{CategoryShort: {"ghost.some-model"}},
		KnownProviders: []string{"openai"},
	}
	if _, err := NewRouter(cfg, nil, nil); err == nil {
		t.Fatalf("expected startup validation to reject an unknown provider")
	}
}

func TestRouter_RouteFallsBackToDefaultWhenCategoryEmpty(t *testing.T) {
	cfg := Config{
		Pools:          map[Category][]string{},
		Default:        []string{"openai.gpt-4o"},
		KnownProviders: []string{"openai"},
	}
	r, err := NewRouter(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	req := &pipeline.Request{Model: "gpt-4o", Messages: []pipeline.Message{{Role: "user", Content: "hi"}}}
	decision, err := r.Route(req)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.ProviderID != "openai" {
		t.Fatalf("expected fallback to default pool, got %+v", decision)
	}
	if req.Route.ProviderID != "openai" {
		t.Fatalf("expected req.Route stamped, got %+v", req.Route)
	}
}

func TestRouter_RouteReturnsPipelineUnavailableWhenNoPools(t *testing.T) {
	cfg := Config{KnownProviders: []string{"openai"}}
	r, err := NewRouter(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	req := &pipeline.Request{Model: "gpt-4o", Messages: []pipeline.Message{{Role: "user", Content: "hi"}}}
	if _, err := r.Route(req); err == nil {
		t.Fatalf("expected pipeline_unavailable error")
	}
}

type fakeHealth map[string]bool

func (f fakeHealth) Healthy(providerID string) bool {
	v, ok := f[providerID]
	if !ok {
		return true
	}
	return v
}

func repeatWords(n int) string {
	out := make([]byte, 0, n*5)
	word := []byte("hello ")
	for i := 0; i < n; i++ {
		out = append(out, word...)
	}
	return string(out)
}
