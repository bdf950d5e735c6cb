// Package rcerrors implements the error taxonomy described in the gateway's
// error handling design: a small set of typed kinds, each with a default
// HTTP status, that every stage boundary funnels into before it reaches the
// HTTP layer.
package rcerrors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is one of the taxonomy's named error categories.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindConversion         Kind = "conversion_error"
	KindAuthentication     Kind = "authentication_error"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindRequestTimeout     Kind = "request_timeout"
	KindRateLimit          Kind = "rate_limit"
	KindUpstreamClientErr  Kind = "upstream_client_error"
	KindUpstreamError      Kind = "upstream_error"
	KindGatewayTimeout     Kind = "gateway_timeout"
	KindPipelineUnavailable Kind = "pipeline_unavailable"
	KindSandboxDenied      Kind = "sandbox_denied"
)

// defaultStatus maps each kind to its default HTTP status. Some call sites
// override the default (e.g. conversion_error is 400 on inbound malformation
// but 502 on unrecognizable upstream shape).
var defaultStatus = map[Kind]int{
	KindValidation:          400,
	KindConversion:          400,
	KindAuthentication:      401,
	KindForbidden:           403,
	KindNotFound:            404,
	KindRequestTimeout:      504,
	KindRateLimit:           429,
	KindUpstreamClientErr:   400,
	KindUpstreamError:       502,
	KindGatewayTimeout:      504,
	KindPipelineUnavailable: 503,
	KindSandboxDenied:       500,
}

// Error is the typed error value propagated through the pipeline. Every
// stage wraps its failures into one of these before returning.
type Error struct {
	Kind            Kind
	Message         string
	Status          int // 0 means "use defaultStatus[Kind]"
	RequestID       string
	ProviderKey     string
	RouteName       string
	ProviderType    string
	UpstreamStatus  int
	UpstreamCode    string
	UpstreamMessage string

	// Stage records which pipeline stage produced the error, filled in by
	// the Runner when it wraps a stage failure.
	Stage      string
	PipelineID string

	cause error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code to send to the client.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if s, ok := defaultStatus[e.Kind]; ok {
		return s
	}
	return 500
}

// New creates a new typed error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new typed error that records cause for Unwrap/errors.Is
// chains while presenting a taxonomy-conformant message.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithStatus overrides the default HTTP status for this error instance
// (used e.g. for conversion_error, which is 400 or 502 depending on which
// side of the codec failed).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithRequestID attaches the request id for propagation policy fields.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithRoute attaches route/provider context.
func (e *Error) WithRoute(routeName, providerKey, providerType string) *Error {
	e.RouteName = routeName
	e.ProviderKey = providerKey
	e.ProviderType = providerType
	return e
}

// WithUpstream attaches the upstream status/code/message that triggered
// this error, when the error originated from an upstream HTTP response.
func (e *Error) WithUpstream(status int, code, message string) *Error {
	e.UpstreamStatus = status
	e.UpstreamCode = code
	e.UpstreamMessage = message
	return e
}

// Body renders the HTTP response body per the propagation policy:
// { "error": { message, code, request_id, provider_key?, route_name?,
//   provider_type?, upstream_status?, upstream_code?, upstream_message? } }
func (e *Error) Body() []byte {
	inner := map[string]interface{}{
		"message":    e.Message,
		"code":       string(e.Kind),
		"request_id": e.RequestID,
	}
	if e.ProviderKey != "" {
		inner["provider_key"] = e.ProviderKey
	}
	if e.RouteName != "" {
		inner["route_name"] = e.RouteName
	}
	if e.ProviderType != "" {
		inner["provider_type"] = e.ProviderType
	}
	if e.UpstreamStatus != 0 {
		inner["upstream_status"] = e.UpstreamStatus
	}
	if e.UpstreamCode != "" {
		inner["upstream_code"] = e.UpstreamCode
	}
	if e.UpstreamMessage != "" {
		inner["upstream_message"] = e.UpstreamMessage
	}
	out, err := json.Marshal(map[string]interface{}{"error": inner})
	if err != nil {
		return []byte(`{"error":{"message":"internal error rendering error body","code":"upstream_error"}}`)
	}
	return out
}

// NormalizeTimeout detects timeout-shaped messages (even when the original
// status was e.g. 502) and forces the taxonomy kind/status to
// request_timeout/504, per the error handling design's note on message-
// content-based timeout detection.
func NormalizeTimeout(e *Error) *Error {
	if e == nil {
		return nil
	}
	lower := strings.ToLower(e.Message + " " + e.UpstreamMessage)
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "upstream_stream_idle_timeout") {
		e.Kind = KindRequestTimeout
		e.Status = 504
	}
	return e
}

// ParseNestedUpstreamMessage extracts an inner JSON error object from a
// message of the form `HTTP 400 {...inner error...}`, which some upstreams
// emit as a single string. Returns the original message unchanged if no
// nested JSON object is found.
func ParseNestedUpstreamMessage(message string) string {
	idx := strings.IndexByte(message, '{')
	if idx < 0 {
		return message
	}
	var inner map[string]interface{}
	if err := json.Unmarshal([]byte(message[idx:]), &inner); err != nil {
		return message
	}
	if errObj, ok := inner["error"].(map[string]interface{}); ok {
		if msg, ok := errObj["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := inner["message"].(string); ok {
		return msg
	}
	return message
}

// FromUpstreamStatus classifies a raw upstream HTTP status into the
// taxonomy, per §7: 429 -> rate_limit, 5xx -> upstream_error, other 4xx ->
// upstream_client_error.
func FromUpstreamStatus(status int, message string) *Error {
	switch {
	case status == 429:
		return New(KindRateLimit, "%s", message).WithStatus(429)
	case status == 408 || status == 425:
		return New(KindRequestTimeout, "%s", message).WithStatus(504)
	case status >= 500:
		return New(KindUpstreamError, "%s", message).WithStatus(502)
	case status >= 400:
		return New(KindUpstreamClientErr, "%s", message).WithStatus(status)
	default:
		return New(KindUpstreamError, "%s", message).WithStatus(502)
	}
}
