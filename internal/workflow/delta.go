package workflow

import (
	"encoding/json"

	"github.com/routecodex/routecodex/internal/pipeline"
)

// delta is one incremental unit decoded from a single upstream SSE event,
// independent of which dialect produced it. apply() folds it into a
// running canonicalAccumulator.
type delta struct {
	textDelta     string
	toolCallIndex int
	toolCallID    string
	toolCallName  string
	argsDelta     string
	model         string
	finishReason  string
	done          bool
}

// canonicalAccumulator collects deltas across an entire SSE stream into the
// same canonicalResponse-shaped data llmswitch uses for non-streaming
// bodies, so a fully-drained stream can be re-encoded as ordinary JSON (or
// replayed as a single synthetic SSE burst in a different dialect).
type canonicalAccumulator struct {
	model        string
	text         string
	finishReason string
	tokensIn     int
	tokensOut    int

	toolCalls   []pipeline.ToolCall
	toolIndex   map[int]int // upstream tool_call index -> position in toolCalls
}

func newAccumulator() *canonicalAccumulator {
	return &canonicalAccumulator{toolIndex: make(map[int]int)}
}

func (a *canonicalAccumulator) apply(d delta) {
	if d.model != "" {
		a.model = d.model
	}
	if d.textDelta != "" {
		a.text += d.textDelta
	}
	if d.finishReason != "" {
		a.finishReason = d.finishReason
	}
	if d.toolCallID != "" || d.argsDelta != "" || d.toolCallName != "" {
		pos, ok := a.toolIndex[d.toolCallIndex]
		if !ok {
			pos = len(a.toolCalls)
			a.toolIndex[d.toolCallIndex] = pos
			a.toolCalls = append(a.toolCalls, pipeline.ToolCall{Type: "function"})
		}
		if d.toolCallID != "" {
			a.toolCalls[pos].ID = d.toolCallID
		}
		if d.toolCallName != "" {
			a.toolCalls[pos].Function.Name = d.toolCallName
		}
		a.toolCalls[pos].Function.Arguments += d.argsDelta
	}
}

func (a *canonicalAccumulator) toBlocks() []pipeline.ContentBlock {
	if a.text == "" {
		return nil
	}
	return []pipeline.ContentBlock{{Type: "text", Text: a.text}}
}

// --- Chat SSE event decoding ---

type chatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func decodeChatDeltas(data string) []delta {
	if data == "[DONE]" {
		return []delta{{done: true}}
	}
	var chunk chatStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil
	}
	var out []delta
	if len(chunk.Choices) == 0 {
		if chunk.Model != "" {
			out = append(out, delta{model: chunk.Model})
		}
		return out
	}
	choice := chunk.Choices[0]
	d := delta{model: chunk.Model, textDelta: choice.Delta.Content, finishReason: choice.FinishReason}
	if len(choice.Delta.ToolCalls) == 0 {
		return []delta{d}
	}
	out = append(out, d)
	for _, tc := range choice.Delta.ToolCalls {
		out = append(out, delta{
			toolCallIndex: tc.Index, toolCallID: tc.ID,
			toolCallName: tc.Function.Name, argsDelta: tc.Function.Arguments,
		})
	}
	return out
}

// --- Anthropic SSE event decoding ---

type anthropicStreamEvent struct {
	Type string `json:"type"`
	Message struct {
		Model string `json:"model"`
	} `json:"message"`
	Index int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
}

func decodeAnthropicDeltas(eventType, data string) []delta {
	var evt anthropicStreamEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return nil
	}
	typ := evt.Type
	if typ == "" {
		typ = eventType
	}
	switch typ {
	case "message_start":
		return []delta{{model: evt.Message.Model}}
	case "content_block_start":
		if evt.ContentBlock.Type == "tool_use" {
			return []delta{{toolCallIndex: evt.Index, toolCallID: evt.ContentBlock.ID, toolCallName: evt.ContentBlock.Name}}
		}
		return nil
	case "content_block_delta":
		switch evt.Delta.Type {
		case "text_delta":
			return []delta{{textDelta: evt.Delta.Text}}
		case "input_json_delta":
			return []delta{{toolCallIndex: evt.Index, argsDelta: evt.Delta.PartialJSON}}
		}
		return nil
	case "message_delta":
		if evt.Delta.StopReason != "" {
			return []delta{{finishReason: stopToFinishDelta(evt.Delta.StopReason)}}
		}
		return nil
	case "message_stop":
		return []delta{{done: true}}
	default:
		return nil
	}
}

func stopToFinishDelta(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

// --- Responses SSE event decoding ---

type responsesStreamEvent struct {
	Type     string `json:"type"`
	Response struct {
		Model string `json:"model"`
		Status string `json:"status"`
	} `json:"response"`
	Delta string `json:"delta"`
	Item  struct {
		Type   string `json:"type"`
		CallID string `json:"call_id"`
		Name   string `json:"name"`
	} `json:"item"`
	OutputIndex int `json:"output_index"`
}

func decodeResponsesDeltas(eventType, data string) []delta {
	var evt responsesStreamEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return nil
	}
	typ := evt.Type
	if typ == "" {
		typ = eventType
	}
	switch typ {
	case "response.created", "response.in_progress":
		if evt.Response.Model != "" {
			return []delta{{model: evt.Response.Model}}
		}
		return nil
	case "response.output_text.delta":
		return []delta{{textDelta: evt.Delta}}
	case "response.output_item.added":
		if evt.Item.Type == "function_call" {
			return []delta{{toolCallIndex: evt.OutputIndex, toolCallID: evt.Item.CallID, toolCallName: evt.Item.Name}}
		}
		return nil
	case "response.function_call_arguments.delta":
		return []delta{{toolCallIndex: evt.OutputIndex, argsDelta: evt.Delta}}
	case "response.completed":
		finish := "stop"
		if evt.Response.Status == "incomplete" {
			finish = "length"
		}
		return []delta{{finishReason: finish, done: true}}
	default:
		return nil
	}
}

func decodeDeltas(protocol pipeline.Protocol, eventType, data string) []delta {
	switch protocol {
	case pipeline.ProtocolChat, pipeline.ProtocolCompletion:
		return decodeChatDeltas(data)
	case pipeline.ProtocolAnthropic:
		return decodeAnthropicDeltas(eventType, data)
	case pipeline.ProtocolResponses:
		return decodeResponsesDeltas(eventType, data)
	default:
		return nil
	}
}
