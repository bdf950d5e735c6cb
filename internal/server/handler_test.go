package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/routecodex/routecodex/internal/auth"
	"github.com/routecodex/routecodex/internal/compatibility"
	"github.com/routecodex/routecodex/internal/llmswitch"
	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/provider"
	"github.com/routecodex/routecodex/internal/router"
	"github.com/routecodex/routecodex/internal/workflow"
)

// fakeKeyResolver satisfies keyResolver without touching the OS keyring.
type fakeKeyResolver struct{ key string }

func (f fakeKeyResolver) ResolveKeyRef(string) (string, error) { return f.key, nil }

// newTestHandler wires a real Runner/Router against an httptest upstream
// standing in for the "test" provider, so handler tests exercise the full
// decode -> route -> run -> write path rather than mocking it away.
func newTestHandler(t *testing.T, upstream *httptest.Server) *Handler {
	t.Helper()

	client := provider.NewClient(0)
	breakers := provider.NewBreakerRegistry(5, time.Second, 1)
	registry := provider.NewRegistry(client, provider.RetryPolicy{MaxAttempts: 1}, breakers)

	cred, err := auth.NewAPIKeyCredential([]string{"test-key"}, "Authorization")
	if err != nil {
		t.Fatalf("NewAPIKeyCredential: %v", err)
	}
	registry.Register(&provider.Endpoint{
		ProviderID: "test",
		BaseURL:    upstream.URL,
		Path:       "/v1/chat/completions",
	}, cred)

	classifier := router.NewClassifier(nil, nil)
	rt, err := router.NewRouter(router.Config{
		Default:        []string{"test.gpt"},
		KnownProviders: []string{"test"},
	}, classifier, router.AlwaysHealthy{})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	resolve := func(string) pipeline.Protocol { return pipeline.ProtocolChat }
	llmswitchStage := llmswitch.New(resolve)
	workflowStage := workflow.New()
	compatStage := compatibility.New(nil)

	factory := func() *pipeline.Runner {
		return pipeline.NewRunner(nil, 5*time.Second, llmswitchStage, workflowStage, compatStage, provider.NewStage(registry))
	}

	return &Handler{
		NewRunner:   factory,
		Router:      rt,
		Logger:      zerolog.Nop(),
		MaxBodySize: 1 << 20,
		HeartbeatMs: 1000,
	}
}

func TestHandleChatCompletions_RoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected forwarded auth header, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"resp-1","model":"gpt","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream)

	body := []byte(`{"model":"gpt","messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleChatCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header to be set")
	}
}

func TestHandleChatCompletions_UnknownPath(t *testing.T) {
	h := newTestHandler(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodPost, "/v1/not-a-real-endpoint", bytes.NewReader(nil))
	rec := httptest.NewRecorder()

	h.handleCompletion(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleChatCompletions_MalformedBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()
	h := newTestHandler(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.HandleChatCompletions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatCompletions_UpstreamFailureMapsToError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer upstream.Close()
	h := newTestHandler(t, upstream)

	body := []byte(`{"model":"gpt","messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleChatCompletions(rec, req)

	if rec.Code < 500 {
		t.Fatalf("expected an error status, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := &Handler{}
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}

func TestHandleModels_ListsCatalog(t *testing.T) {
	h := &Handler{ModelCatalog: func() []string { return []string{"test.gpt", "test.other"} }}
	rec := httptest.NewRecorder()
	h.HandleModels(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	var decoded struct {
		Object string                   `json:"object"`
		Data   []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding models response: %v", err)
	}
	if decoded.Object != "list" || len(decoded.Data) != 2 {
		t.Fatalf("unexpected models payload: %+v", decoded)
	}
}

func TestConnLiveness_ReflectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cl := connLiveness{ctx: ctx}
	if cl.Disconnected() {
		t.Fatal("expected live context to report connected")
	}
	cancel()
	if !cl.Disconnected() {
		t.Fatal("expected cancelled context to report disconnected")
	}
}
