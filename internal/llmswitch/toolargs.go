package llmswitch

import "encoding/json"

// argsToString renders a tool-call argument value as the JSON-encoded string
// the Chat/Responses dialects expect in ToolFunction.Arguments. Anthropic
// carries the same data as a native JSON value (ContentBlock.Input); this is
// the one place that string-vs-value distinction is bridged.
func argsToString(input interface{}) string {
	if input == nil {
		return "{}"
	}
	if s, ok := input.(string); ok {
		return s
	}
	b, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// argsToValue parses a Chat/Responses arguments string back into a native
// JSON value for the Anthropic dialect's input field. Malformed argument
// strings (seen in the wild from some providers) are passed through as a
// raw string rather than dropped, so the round-trip never silently loses
// the tool call.
func argsToValue(raw string) interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
