package snapshot

import (
	"io"
	"sync"
)

// sseCap bounds how much of an SSE stream is retained for a single
// provider-response snapshot; streams routinely run far longer than this,
// so the tail of a long stream is dropped rather than the snapshot growing
// unbounded.
const sseCap = 256 * 1024

// Tee wraps an io.ReadCloser carrying an SSE body. Every byte read through
// it is also accumulated into a capped buffer; once the stream ends (Close,
// EOF, or a read error) the accumulated bytes are flushed as one
// provider-response Record with Mode "sse", exactly once.
type Tee struct {
	io.ReadCloser

	runner *Runner

	mu       sync.Mutex
	buf      []byte
	flushed  bool
	phase    Phase
	endpoint string
	reqID    string
}

// NewTee wraps rc so every byte it yields is accumulated for a single
// end-of-stream snapshot, emitted through runner. endpoint and requestID are
// stamped onto the resulting Record.
func NewTee(rc io.ReadCloser, runner *Runner, endpoint, requestID string) *Tee {
	return &Tee{
		ReadCloser: rc,
		runner:     runner,
		phase:      PhaseProviderResponse,
		endpoint:   endpoint,
		reqID:      requestID,
	}
}

func (t *Tee) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if n > 0 {
		t.accumulate(p[:n])
	}
	if err != nil {
		t.flush()
	}
	return n, err
}

func (t *Tee) Close() error {
	t.flush()
	return t.ReadCloser.Close()
}

func (t *Tee) accumulate(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) >= sseCap {
		return
	}
	room := sseCap - len(t.buf)
	if len(b) > room {
		b = b[:room]
	}
	t.buf = append(t.buf, b...)
}

func (t *Tee) flush() {
	t.mu.Lock()
	if t.flushed {
		t.mu.Unlock()
		return
	}
	t.flushed = true
	raw := string(t.buf)
	t.mu.Unlock()

	if t.runner == nil {
		return
	}
	rec := Record{
		Phase:     t.phase,
		Endpoint:  t.endpoint,
		RequestID: t.reqID,
		Mode:      "sse",
		Text:      raw,
	}
	go t.runner.sink.Write(rec)
}
