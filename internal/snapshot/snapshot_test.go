package snapshot

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/routecodex/routecodex/internal/pipeline"
)

func TestMaskValue_ShortStringFullyMasked(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "abcd"} {
		if got := maskValue(s); got != strings.Repeat("*", len(s)) {
			t.Errorf("maskValue(%q) = %q, want fully masked", s, got)
		}
	}
}

func TestMaskValue_PreservesPrefixAndSuffix(t *testing.T) {
	got := maskValue("sk-ant-abcdefgh1234")
	if !strings.HasPrefix(got, "sk") || !strings.HasSuffix(got, "34") {
		t.Fatalf("maskValue did not preserve prefix/suffix: %q", got)
	}
	if strings.Contains(got, "abcdefgh") {
		t.Fatalf("maskValue leaked interior bytes: %q", got)
	}
}

func TestMaskHeaders_MasksOnlySensitiveNames(t *testing.T) {
	headers := map[string]string{
		"Authorization": "Bearer sk-1234567890abcdef",
		"X-Api-Key":     "abcdefghijkl",
		"Content-Type":  "application/json",
	}
	masked := MaskHeaders(headers)
	if masked["Content-Type"] != "application/json" {
		t.Fatalf("expected Content-Type untouched, got %q", masked["Content-Type"])
	}
	if masked["Authorization"] == headers["Authorization"] {
		t.Fatalf("expected Authorization masked")
	}
	if masked["X-Api-Key"] == headers["X-Api-Key"] {
		t.Fatalf("expected X-Api-Key masked")
	}
}

func TestMaskHeaders_NilIsNil(t *testing.T) {
	if MaskHeaders(nil) != nil {
		t.Fatalf("expected nil headers to stay nil")
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []Record
}

func (s *recordingSink) Write(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) wait(t *testing.T, n int) []Record {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		got := len(s.records)
		s.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func TestRunner_SnapshotDoesNotBlockOnSlowSink(t *testing.T) {
	blocking := make(chan struct{})
	sink := &blockingSink{release: blocking}
	runner := NewRunner(sink, 0)

	done := make(chan struct{})
	go func() {
		runner.Snapshot("client-request", &pipeline.Request{}, nil, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("Snapshot blocked on a slow sink")
	}
	close(blocking)
}

type blockingSink struct{ release chan struct{} }

func (b *blockingSink) Write(Record) { <-b.release }

func TestRunner_Snapshot_CarriesRouteAndHeaders(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(sink, 0)

	req := &pipeline.Request{
		Meta: pipeline.RequestMeta{
			InboundEndpoint: "/v1/chat/completions",
			ClientHeaders:   map[string]string{"Authorization": "Bearer abcdefghijklmnop"},
		},
	}
	req.Route.RequestID = "req-1"
	req.Route.ClientRequestID = "client-1"
	req.Route.ProviderID = "openai"

	runner.Snapshot("client-request", req, nil, errors.New("boom"))

	recs := sink.wait(t, 1)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.RequestID != "req-1" || rec.ClientRequestID != "client-1" || rec.ProviderKey != "openai" {
		t.Fatalf("unexpected route fields: %+v", rec)
	}
	if rec.Endpoint != "/v1/chat/completions" {
		t.Fatalf("unexpected endpoint: %q", rec.Endpoint)
	}
	if rec.Err != "boom" {
		t.Fatalf("expected error captured, got %q", rec.Err)
	}
	if rec.Headers["Authorization"] == "Bearer abcdefghijklmnop" {
		t.Fatalf("expected Authorization header masked in snapshot")
	}
}

func TestRunner_Snapshot_TruncatesOversizedBody(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(sink, 8)

	resp := &pipeline.Response{Body: []byte("0123456789")}
	runner.Snapshot("provider-response", &pipeline.Request{}, resp, nil)

	recs := sink.wait(t, 1)
	if len(recs[0].Body) != 8 {
		t.Fatalf("expected body truncated to 8 bytes, got %q", recs[0].Body)
	}
}

type closeTrackingReader struct {
	io.Reader
	closed bool
}

func (c *closeTrackingReader) Close() error {
	c.closed = true
	return nil
}

func TestTee_FlushesOnceOnEOFThenClose(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(sink, 0)

	inner := &closeTrackingReader{Reader: strings.NewReader("data: hello\n\ndata: [DONE]\n\n")}
	tee := NewTee(inner, runner, "/v1/chat/completions", "req-9")

	buf := make([]byte, 4096)
	for {
		_, err := tee.Read(buf)
		if err != nil {
			break
		}
	}
	tee.Close()

	recs := sink.wait(t, 1)
	if len(recs) != 1 {
		t.Fatalf("expected exactly one flushed record, got %d", len(recs))
	}
	if recs[0].Mode != "sse" {
		t.Fatalf("expected sse mode, got %q", recs[0].Mode)
	}
	if !strings.Contains(recs[0].Text, "data: [DONE]") {
		t.Fatalf("expected accumulated SSE text, got %q", recs[0].Text)
	}
	if !inner.closed {
		t.Fatalf("expected underlying reader closed")
	}
}

func TestTee_CapsAccumulatedBuffer(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(sink, 0)

	huge := strings.Repeat("x", sseCap+1000)
	tee := NewTee(io.NopCloser(strings.NewReader(huge)), runner, "", "req-cap")

	buf := make([]byte, 4096)
	for {
		_, err := tee.Read(buf)
		if err != nil {
			break
		}
	}
	tee.Close()

	recs := sink.wait(t, 1)
	if len(recs[0].Text) > sseCap {
		t.Fatalf("expected buffer capped at %d bytes, got %d", sseCap, len(recs[0].Text))
	}
}
