package llmswitch

// finishReasonToStop maps an OpenAI-family finish_reason to the Anthropic
// stop_reason vocabulary.
var finishReasonToStop = map[string]string{
	"stop":           "end_turn",
	"length":         "max_tokens",
	"tool_calls":     "tool_use",
	"function_call":  "tool_use",
	"content_filter": "stop_sequence",
}

// stopReasonToFinish is the inverse mapping, Anthropic stop_reason ->
// OpenAI-family finish_reason.
var stopReasonToFinish = map[string]string{
	"end_turn":      "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
	"stop_sequence": "stop",
}

func finishToStop(reason string) string {
	if v, ok := finishReasonToStop[reason]; ok {
		return v
	}
	return "end_turn"
}

func stopToFinish(reason string) string {
	if v, ok := stopReasonToFinish[reason]; ok {
		return v
	}
	return "stop"
}

// finishToResponsesStatus maps a canonical finish reason to a Responses API
// "status" value.
func finishToResponsesStatus(reason string) string {
	switch reason {
	case "length":
		return "incomplete"
	case "":
		return "in_progress"
	case "tool_calls", "function_call":
		return "requires_action"
	default:
		return "completed"
	}
}

func responsesStatusToFinish(status string, hadToolCall bool) string {
	if hadToolCall {
		return "tool_calls"
	}
	switch status {
	case "incomplete":
		return "length"
	default:
		return "stop"
	}
}
