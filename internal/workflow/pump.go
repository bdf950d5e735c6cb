package workflow

import (
	"context"
	"io"
	"net/http"
	"time"
)

// defaultHeartbeatInterval matches the cadence decided for the idle-SSE
// Open Question (see DESIGN.md).
const defaultHeartbeatInterval = 5 * time.Second

// Pump copies an already client-shaped SSE body to w, writing to
// http.ResponseWriter headers first, and injecting a heartbeat comment
// whenever no upstream byte has arrived for interval. A non-positive
// interval falls back to defaultHeartbeatInterval (5s). Pump returns once body is drained, ctx is
// canceled, or a write error occurs.
func Pump(ctx context.Context, w http.ResponseWriter, body io.ReadCloser, interval time.Duration) error {
	defer body.Close()
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := NewWriter(w)

	type chunk struct {
		buf []byte
		err error
	}
	chunks := make(chan chunk, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, 32*1024)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				chunks <- chunk{buf: cp}
			}
			if err != nil {
				if err != io.EOF {
					chunks <- chunk{err: err}
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sw.WriteHeartbeat(); err != nil {
				return err
			}
		case c, ok := <-chunks:
			if !ok {
				return nil
			}
			if c.err != nil {
				return c.err
			}
			if _, err := w.Write(c.buf); err != nil {
				return err
			}
			sw.Flush()
			ticker.Reset(interval)
		}
	}
}
