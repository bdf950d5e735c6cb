// Package compatibility implements the Compatibility pipeline stage: the
// per-provider adaptation layer that keeps the Provider stage uniform by
// absorbing schema sanitization, field-name mapping, and response repair
// into data-driven tables rather than scattering provider-specific
// conditionals through the transport code.
package compatibility

import (
	"strconv"
	"strings"
	"time"
)

// Direction names which leg of a request/response a MappingEntry applies to.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MappingEntry is one field-rename-and-transform rule loaded at adapter
// construction time. SourcePath and TargetPath are single top-level keys of
// a generic map[string]interface{} view of the wire payload; a dot in them
// is not treated as a path separator.
type MappingEntry struct {
	SourcePath string
	TargetPath string
	Type       string // "string", "int", "float", "bool" — informational, used by transforms that need to coerce
	Direction  Direction
	Transform  string // one of the named transforms below, or "" for a plain rename
}

// namedTransform is a pure function from a decoded field value to its
// transformed replacement. Unknown transform names are a no-op.
type namedTransform func(interface{}) interface{}

var namedTransforms = map[string]namedTransform{
	"timestamp":           transformTimestamp,
	"lowercase":           transformLowercase,
	"uppercase":           transformUppercase,
	"normalizeModelName":  transformNormalizeModelName,
	"normalizeFinishReason": transformNormalizeFinishReason,
}

func transformTimestamp(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.Unix()
		}
		return v
	case float64:
		return int64(t)
	default:
		return v
	}
}

func transformLowercase(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return v
}

func transformUppercase(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.ToUpper(s)
	}
	return v
}

// transformNormalizeModelName strips provider-namespace prefixes some
// backends prepend to model ids (e.g. "models/gemini-1.5-pro" -> "gemini-1.5-pro").
func transformNormalizeModelName(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// finishReasonAliases collapses the various spellings providers use for the
// same terminal states onto the Chat dialect's vocabulary.
var finishReasonAliases = map[string]string{
	"stop_sequence":  "stop",
	"end_turn":       "stop",
	"max_tokens":     "length",
	"MAX_TOKENS":     "length",
	"tool_use":       "tool_calls",
	"function_call":  "tool_calls",
	"STOP":           "stop",
	"SAFETY":         "content_filter",
	"RECITATION":     "content_filter",
}

func transformNormalizeFinishReason(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if alias, ok := finishReasonAliases[s]; ok {
		return alias
	}
	return s
}

// ApplyMapping rewrites entries in m matching direction: the value at
// SourcePath (if present) is read, optionally transformed, deleted from its
// source location, and written to TargetPath. Paths are a single flat key;
// nested dot-paths are not needed by any mapping this gateway currently
// carries, so the simpler flat form keeps the table legible.
func ApplyMapping(direction Direction, m map[string]interface{}, table []MappingEntry) {
	for _, entry := range table {
		if entry.Direction != direction {
			continue
		}
		v, ok := m[entry.SourcePath]
		if !ok {
			continue
		}
		if entry.Transform != "" {
			if fn, ok := namedTransforms[entry.Transform]; ok {
				v = fn(v)
			}
		}
		if entry.SourcePath != entry.TargetPath {
			delete(m, entry.SourcePath)
		}
		m[entry.TargetPath] = v
	}
}

// coerceInt best-effort converts a decoded JSON number/string to an int,
// used by the max_tokens default chain which may see either shape.
func coerceInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	default:
		return 0, false
	}
}
