// Package pipeline defines the envelope types that flow through the
// LLMSwitch -> Workflow -> Compatibility -> Provider chain.
package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Protocol identifies the wire shape of a request or response payload.
type Protocol string

const (
	ProtocolChat       Protocol = "chat"
	ProtocolResponses  Protocol = "responses"
	ProtocolAnthropic  Protocol = "anthropic"
	ProtocolCompletion Protocol = "completion"
	ProtocolUnknown    Protocol = "unknown"
)

// Message is a normalized chat message. Content is either a plain string or
// a []ContentBlock for multi-part messages.
type Message struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content"`
	Name       string      `json:"name,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
}

// ContentBlock represents one part of a multi-part message. Extra captures
// JSON fields not recognized by name, so round-tripping through the codec
// never silently drops provider-specific extensions (image_url, cache
// directives, etc).
type ContentBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text,omitempty"`
	Source       map[string]interface{} `json:"source,omitempty"`
	ID           string                 `json:"id,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Input        interface{}            `json:"input,omitempty"`
	ToolUseID    string                 `json:"tool_use_id,omitempty"`
	Content      interface{}            `json:"content,omitempty"`
	CacheControl map[string]interface{} `json:"cache_control,omitempty"`
	Extra        map[string]interface{} `json:"-"`
}

var knownContentBlockKeys = map[string]bool{
	"type": true, "text": true, "source": true, "id": true,
	"name": true, "input": true, "tool_use_id": true,
	"content": true, "cache_control": true,
}

// UnmarshalJSON captures unrecognized fields into Extra so they survive
// round-tripping between protocol dialects.
func (cb *ContentBlock) UnmarshalJSON(data []byte) error {
	type Alias ContentBlock
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*cb = ContentBlock(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		if knownContentBlockKeys[key] {
			continue
		}
		if cb.Extra == nil {
			cb.Extra = make(map[string]interface{})
		}
		var v interface{}
		if err := json.Unmarshal(val, &v); err != nil {
			cb.Extra[key] = string(val)
		} else {
			cb.Extra[key] = v
		}
	}
	return nil
}

// MarshalJSON re-emits Extra fields alongside known fields.
func (cb ContentBlock) MarshalJSON() ([]byte, error) {
	type Alias ContentBlock
	data, err := json.Marshal(Alias(cb))
	if err != nil {
		return nil, err
	}
	if len(cb.Extra) == 0 {
		return data, nil
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}
	for key, val := range cb.Extra {
		encoded, err := json.Marshal(val)
		if err != nil {
			continue
		}
		base[key] = encoded
	}
	return json.Marshal(base)
}

// ToolCall is an assistant-emitted tool invocation (OpenAI tool_calls /
// Anthropic tool_use, normalized).
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the callable name and JSON-encoded arguments string.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a tool/function definition offered to the model.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema,omitempty"`
	Type        string      `json:"type,omitempty"`
	Function    interface{} `json:"function,omitempty"`
}

// RouteDecision records which provider/model/pipeline a request was bound
// to by the virtual router. It is immutable once set by the router and
// carried unchanged through every stage.
type RouteDecision struct {
	ProviderID      string
	ModelID         string
	KeyID           string
	PipelineID      string
	RouteCategory   string
	RequestID       string
	ClientRequestID string
	Timestamp       time.Time
}

// ConnLiveness lets the Provider stage observe client disconnects without
// holding a direct reference to the HTTP transport.
type ConnLiveness interface {
	Disconnected() bool
}

// RequestMeta carries cross-cutting information that is not part of the
// provider-neutral payload itself.
type RequestMeta struct {
	InboundEndpoint string
	ClientHeaders   map[string]string // captured + masked, for snapshotting
	InboundStream   bool              // did the client ask for SSE?
	OutboundStream  bool              // will the upstream call be SSE?
	RawBody         []byte
	Liveness        ConnLiveness
}

// DebugControl is a per-stage enable bag threaded through the pipeline so
// callers can selectively silence snapshotting or tracing per request.
type DebugControl struct {
	SnapshotEnabled map[string]bool
}

// Enabled reports whether snapshotting is enabled for the given stage name.
// Absent entries default to enabled.
func (d DebugControl) Enabled(stage string) bool {
	if d.SnapshotEnabled == nil {
		return true
	}
	v, ok := d.SnapshotEnabled[stage]
	return !ok || v
}

// Request is the pipeline envelope as it flows downward through the four
// stages. Fields are mutated in place by each stage's ProcessIncoming.
type Request struct {
	// InboundProtocol is the protocol the client spoke to the entry
	// endpoint. Protocol below is mutated by LLMSwitch to the upstream
	// provider's protocol; InboundProtocol never changes once set, so the
	// outgoing leg knows which shape to rebuild.
	InboundProtocol Protocol
	Protocol     Protocol
	Model        string
	Messages     []Message
	System       string
	SystemBlocks []ContentBlock
	Tools        []Tool
	ToolChoice   interface{}
	Stream       bool
	MaxTokens    int
	Temperature  *float64
	Metadata     map[string]interface{}
	TokensIn     int

	Route RouteDecision
	Meta  RequestMeta
	Debug DebugControl

	Headers map[string]string
}

// StreamToken wraps an opaque upstream byte stream together with the
// content-type discriminator the client should see. It is the Response
// payload whenever the upstream call was SSE.
type StreamToken struct {
	Body        io.ReadCloser
	ContentType string
}

// Response is the pipeline envelope as it flows back upward.
type Response struct {
	Protocol   Protocol
	StatusCode int
	Model      string // client-visible model name
	UpstreamModel string

	Body   []byte // fully-materialized JSON payload (non-streaming)
	Stream *StreamToken

	ProcessingTime time.Duration
	TokensOut      int
	Usage          map[string]interface{}

	Headers map[string]string
	Error   error
}

// contextKey is an unexported type for context keys in this package.
type contextKey string

const stageTimingsKey contextKey = "stage_timings"

// WithStageTimings stores a per-stage timing map in the context.
func WithStageTimings(ctx context.Context, timings map[string]time.Duration) context.Context {
	return context.WithValue(ctx, stageTimingsKey, timings)
}

// StageTimings retrieves the per-stage timing map from the context.
func StageTimings(ctx context.Context) (map[string]time.Duration, bool) {
	t, ok := ctx.Value(stageTimingsKey).(map[string]time.Duration)
	return t, ok
}
