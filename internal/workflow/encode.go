package workflow

import (
	"encoding/json"

	"github.com/routecodex/routecodex/internal/pipeline"
)

// streamEncoder turns a protocol-neutral delta stream into the SSE events a
// client speaking a particular dialect expects. Implementations are
// stateful: some dialects (Anthropic, Responses) require bracketing
// start/stop events and stable content-block indices that a single delta
// doesn't carry on its own.
type streamEncoder interface {
	// Open returns any events that must precede the first delta (e.g.
	// Anthropic's message_start).
	Open(model string) []*Event
	// Encode returns zero or more events for one delta.
	Encode(d delta) []*Event
	// Close returns any events that must follow the last delta.
	Close(finishReason string) []*Event
}

func newEncoder(protocol pipeline.Protocol) streamEncoder {
	switch protocol {
	case pipeline.ProtocolAnthropic:
		return &anthropicEncoder{}
	case pipeline.ProtocolResponses:
		return &responsesEncoder{}
	default:
		return &chatEncoder{}
	}
}

// --- Chat encoder ---

type chatEncoder struct {
	model string
	id    string
}

func (e *chatEncoder) Open(model string) []*Event {
	e.model = model
	e.id = "chatcmpl-stream"
	return nil
}

func (e *chatEncoder) Encode(d delta) []*Event {
	if d.done {
		return []*Event{{Data: "[DONE]"}}
	}
	if d.model != "" {
		e.model = d.model
	}
	chunk := map[string]interface{}{
		"id": e.id, "object": "chat.completion.chunk", "model": e.model,
		"choices": []map[string]interface{}{{"index": 0, "delta": chatDeltaPayload(d), "finish_reason": nilIfEmpty(d.finishReason)}},
	}
	return []*Event{{Data: mustMarshal(chunk)}}
}

func (e *chatEncoder) Close(finishReason string) []*Event {
	if finishReason == "" {
		return []*Event{{Data: "[DONE]"}}
	}
	chunk := map[string]interface{}{
		"id": e.id, "object": "chat.completion.chunk", "model": e.model,
		"choices": []map[string]interface{}{{"index": 0, "delta": map[string]interface{}{}, "finish_reason": finishReason}},
	}
	return []*Event{{Data: mustMarshal(chunk)}, {Data: "[DONE]"}}
}

func chatDeltaPayload(d delta) map[string]interface{} {
	payload := map[string]interface{}{}
	if d.textDelta != "" {
		payload["content"] = d.textDelta
	}
	if d.toolCallID != "" || d.argsDelta != "" {
		payload["tool_calls"] = []map[string]interface{}{{
			"index": d.toolCallIndex, "id": nilIfEmpty(d.toolCallID), "type": "function",
			"function": map[string]interface{}{"name": nilIfEmpty(d.toolCallName), "arguments": d.argsDelta},
		}}
	}
	return payload
}

// --- Anthropic encoder ---

type anthropicEncoder struct {
	model        string
	blockOpen    bool
	toolOpenIdx  map[int]bool
}

func (e *anthropicEncoder) Open(model string) []*Event {
	e.model = model
	e.toolOpenIdx = make(map[int]bool)
	payload := map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id": "msg_stream", "type": "message", "role": "assistant", "model": model,
			"content": []interface{}{}, "usage": map[string]int{"input_tokens": 0, "output_tokens": 0},
		},
	}
	return []*Event{{Event: "message_start", Data: mustMarshal(payload)}}
}

func (e *anthropicEncoder) Encode(d delta) []*Event {
	var events []*Event
	if d.textDelta != "" {
		if !e.blockOpen {
			events = append(events, e.startBlock(0, "text"))
			e.blockOpen = true
		}
		events = append(events, &Event{Event: "content_block_delta", Data: mustMarshal(map[string]interface{}{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]interface{}{"type": "text_delta", "text": d.textDelta},
		})})
	}
	if d.toolCallID != "" && !e.toolOpenIdx[d.toolCallIndex] {
		e.toolOpenIdx[d.toolCallIndex] = true
		events = append(events, &Event{Event: "content_block_start", Data: mustMarshal(map[string]interface{}{
			"type": "content_block_start", "index": d.toolCallIndex + 1,
			"content_block": map[string]interface{}{"type": "tool_use", "id": d.toolCallID, "name": d.toolCallName, "input": map[string]interface{}{}},
		})})
	}
	if d.argsDelta != "" {
		events = append(events, &Event{Event: "content_block_delta", Data: mustMarshal(map[string]interface{}{
			"type": "content_block_delta", "index": d.toolCallIndex + 1,
			"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": d.argsDelta},
		})})
	}
	return events
}

func (e *anthropicEncoder) startBlock(index int, blockType string) *Event {
	return &Event{Event: "content_block_start", Data: mustMarshal(map[string]interface{}{
		"type": "content_block_start", "index": index,
		"content_block": map[string]interface{}{"type": blockType, "text": ""},
	})}
}

func (e *anthropicEncoder) Close(finishReason string) []*Event {
	var events []*Event
	if e.blockOpen {
		events = append(events, &Event{Event: "content_block_stop", Data: mustMarshal(map[string]interface{}{"type": "content_block_stop", "index": 0})})
	}
	for idx := range e.toolOpenIdx {
		events = append(events, &Event{Event: "content_block_stop", Data: mustMarshal(map[string]interface{}{"type": "content_block_stop", "index": idx + 1})})
	}
	events = append(events, &Event{Event: "message_delta", Data: mustMarshal(map[string]interface{}{
		"type": "message_delta",
		"delta": map[string]interface{}{"stop_reason": finishToStop(finishReason)},
	})})
	events = append(events, &Event{Event: "message_stop", Data: mustMarshal(map[string]interface{}{"type": "message_stop"})})
	return events
}

// --- Responses encoder ---

type responsesEncoder struct {
	model string
}

func (e *responsesEncoder) Open(model string) []*Event {
	e.model = model
	return []*Event{{Event: "response.created", Data: mustMarshal(map[string]interface{}{
		"type": "response.created", "response": map[string]interface{}{"model": model, "status": "in_progress"},
	})}}
}

func (e *responsesEncoder) Encode(d delta) []*Event {
	var events []*Event
	if d.textDelta != "" {
		events = append(events, &Event{Event: "response.output_text.delta", Data: mustMarshal(map[string]interface{}{
			"type": "response.output_text.delta", "delta": d.textDelta,
		})})
	}
	if d.toolCallID != "" {
		events = append(events, &Event{Event: "response.output_item.added", Data: mustMarshal(map[string]interface{}{
			"type": "response.output_item.added", "output_index": d.toolCallIndex,
			"item": map[string]interface{}{"type": "function_call", "call_id": d.toolCallID, "name": d.toolCallName},
		})})
	}
	if d.argsDelta != "" {
		events = append(events, &Event{Event: "response.function_call_arguments.delta", Data: mustMarshal(map[string]interface{}{
			"type": "response.function_call_arguments.delta", "output_index": d.toolCallIndex, "delta": d.argsDelta,
		})})
	}
	return events
}

func (e *responsesEncoder) Close(finishReason string) []*Event {
	status := finishToResponsesStatus(finishReason)
	return []*Event{{Event: "response.completed", Data: mustMarshal(map[string]interface{}{
		"type": "response.completed", "response": map[string]interface{}{"model": e.model, "status": status},
	})}}
}

func finishToResponsesStatus(reason string) string {
	if reason == "length" {
		return "incomplete"
	}
	return "completed"
}

func finishToStop(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func mustMarshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
