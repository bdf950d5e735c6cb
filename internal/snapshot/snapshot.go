// Package snapshot implements the non-blocking observability sink the
// pipeline Runner invokes at each stage boundary: masked request/response
// records, written off the critical path, that never surface their own
// failures back into a request.
package snapshot

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/routecodex/routecodex/internal/pipeline"
)

// Phase identifies where in a request's lifecycle a Record was captured.
type Phase string

const (
	PhaseClientRequest    Phase = "client-request"
	PhaseProviderRequest  Phase = "provider-request"
	PhaseProviderResponse Phase = "provider-response"
	PhaseProviderError    Phase = "provider-error"
	PhaseProviderRetry    Phase = "provider-*.retry"
	PhaseRepairFeedback   Phase = "repair-feedback"
	PhaseHTTPRequest      Phase = "http-request"
	PhaseHTTPResponse     Phase = "http-response"
)

// Record is one captured observation, serialized by Sink implementations.
type Record struct {
	Phase           Phase             `json:"phase"`
	Endpoint        string            `json:"endpoint,omitempty"`
	RequestID       string            `json:"requestId,omitempty"`
	ClientRequestID string            `json:"clientRequestId,omitempty"`
	ProviderKey     string            `json:"providerKey,omitempty"`
	URL             string            `json:"url,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	Text            string            `json:"text,omitempty"`
	Mode            string            `json:"mode,omitempty"`
	Err             string            `json:"error,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// maskedHeaderNames are replaced with an interior mask, preserving a short
// prefix/suffix so the record stays useful for debugging without leaking
// the credential.
var maskedHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
}

// maskValue masks the interior of s, showing only the first 2 and last 2
// characters; strings of 4 characters or fewer are fully masked.
func maskValue(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// MaskHeaders returns a copy of headers with every sensitive value masked.
func MaskHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if maskedHeaderNames[strings.ToLower(k)] {
			out[k] = maskValue(v)
		} else {
			out[k] = v
		}
	}
	return out
}

// Sink receives a Record. Implementations must not block the caller and
// must not return an error to it — failures are logged internally.
type Sink interface {
	Write(rec Record)
}

// ZerologSink logs every record as a structured event at Debug level,
// the teacher's logging idiom (zerolog.Logger.With()...Logger()) applied
// to snapshot records instead of request-handler fields.
type ZerologSink struct {
	Logger zerolog.Logger
}

func (s ZerologSink) Write(rec Record) {
	ev := s.Logger.Debug().
		Str("phase", string(rec.Phase)).
		Str("request_id", rec.RequestID).
		Str("provider_key", rec.ProviderKey)
	if rec.Err != "" {
		ev = ev.Str("error", rec.Err)
	}
	ev.Msg("pipeline snapshot")
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Write(Record) {}

// Runner adapts a Sink to the pipeline.Snapshotter interface the Runner
// invokes synchronously at each stage boundary; Runner.Snapshot itself
// dispatches to the Sink on a separate goroutine so the pipeline's
// critical path never waits on snapshot I/O.
type Runner struct {
	sink         Sink
	maxBodyBytes int
}

// NewRunner builds a pipeline.Snapshotter over sink. maxBodyBytes caps how
// much of a request/response body is captured per record (0 means a
// 64 KiB default).
func NewRunner(sink Sink, maxBodyBytes int) *Runner {
	if sink == nil {
		sink = NopSink{}
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 * 1024
	}
	return &Runner{sink: sink, maxBodyBytes: maxBodyBytes}
}

// Snapshot implements pipeline.Snapshotter.
func (r *Runner) Snapshot(phase string, req *pipeline.Request, resp *pipeline.Response, err error) {
	rec := Record{
		Phase:     Phase(phase),
		Timestamp: time.Now(),
	}
	if req != nil {
		rec.RequestID = req.Route.RequestID
		rec.ClientRequestID = req.Route.ClientRequestID
		rec.ProviderKey = req.Route.ProviderID
		rec.Endpoint = req.Meta.InboundEndpoint
		rec.Headers = MaskHeaders(req.Meta.ClientHeaders)
	}
	if resp != nil {
		rec.Body = r.truncate(resp.Body)
	}
	if err != nil {
		rec.Err = err.Error()
	}

	go r.sink.Write(rec)
}

func (r *Runner) truncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > r.maxBodyBytes {
		return string(body[:r.maxBodyBytes])
	}
	return string(body)
}
