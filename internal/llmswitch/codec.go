package llmswitch

import (
	"encoding/json"
	"fmt"

	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/rcerrors"
)

// Result is the protocol-neutral shape an upstream reply is
// decoded into before being re-encoded toward the client's dialect. It plays
// the same role on the response side that pipeline.Request plays on the
// request side.
type Result struct {
	ID           string
	Model        string
	Blocks       []pipeline.ContentBlock
	ToolCalls    []pipeline.ToolCall
	FinishReason string // normalized to the Chat vocabulary: stop/length/tool_calls/content_filter
	TokensIn     int
	TokensOut    int
}

// DecodeRequest parses a client request body in the given wire protocol into
// the canonical pipeline.Request shape. protocol must be one of
// ProtocolChat, ProtocolResponses, ProtocolAnthropic.
func DecodeRequest(protocol pipeline.Protocol, body []byte) (*pipeline.Request, error) {
	switch protocol {
	case pipeline.ProtocolChat, pipeline.ProtocolCompletion:
		return decodeChatRequest(body)
	case pipeline.ProtocolResponses:
		return decodeResponsesRequest(body)
	case pipeline.ProtocolAnthropic:
		return decodeAnthropicRequest(body)
	default:
		return nil, rcerrors.New(rcerrors.KindValidation, "unsupported inbound protocol %q", protocol)
	}
}

// EncodeRequest serializes req into the wire body for its current
// req.Protocol (the upstream protocol, set by the router/LLMSwitch stage).
func EncodeRequest(req *pipeline.Request) ([]byte, error) {
	switch req.Protocol {
	case pipeline.ProtocolChat, pipeline.ProtocolCompletion:
		return encodeChatRequest(req)
	case pipeline.ProtocolResponses:
		return encodeResponsesRequest(req)
	case pipeline.ProtocolAnthropic:
		return encodeAnthropicRequest(req)
	default:
		return nil, rcerrors.New(rcerrors.KindConversion, "unsupported upstream protocol %q", req.Protocol)
	}
}

// DecodeResponse parses an upstream response body, written in protocol's
// dialect, into the canonical response shape.
func DecodeResponse(protocol pipeline.Protocol, body []byte) (*Result, error) {
	switch protocol {
	case pipeline.ProtocolChat, pipeline.ProtocolCompletion:
		return decodeChatResponse(body)
	case pipeline.ProtocolResponses:
		return decodeResponsesResponse(body)
	case pipeline.ProtocolAnthropic:
		return decodeAnthropicResponse(body)
	default:
		return nil, rcerrors.New(rcerrors.KindConversion, "unsupported upstream protocol %q", protocol).WithStatus(502)
	}
}

// EncodeResponse serializes cr into the client-facing wire body for
// protocol (the request's InboundProtocol).
func EncodeResponse(protocol pipeline.Protocol, cr *Result) ([]byte, error) {
	switch protocol {
	case pipeline.ProtocolChat, pipeline.ProtocolCompletion:
		return encodeChatResponse(cr)
	case pipeline.ProtocolResponses:
		return encodeResponsesResponse(cr)
	case pipeline.ProtocolAnthropic:
		return encodeAnthropicResponse(cr)
	default:
		return nil, rcerrors.New(rcerrors.KindConversion, "unsupported inbound protocol %q", protocol)
	}
}

// --- Chat <-> canonical ---

func decodeChatRequest(body []byte) (*pipeline.Request, error) {
	var wire chatWireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindValidation, err, "decoding chat request: %v", err)
	}
	req := &pipeline.Request{
		InboundProtocol: pipeline.ProtocolChat,
		Protocol:        pipeline.ProtocolChat,
		Model:           wire.Model,
		Stream:          wire.Stream,
		MaxTokens:       wire.MaxTokens,
		Temperature:     wire.Temperature,
		ToolChoice:      wire.ToolChoice,
	}
	for _, t := range wire.Tools {
		req.Tools = append(req.Tools, pipeline.Tool{
			Type: t.Type,
			Name: t.Function.Name, Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	for _, m := range wire.Messages {
		if m.Role == "system" {
			var text string
			_ = json.Unmarshal(m.Content, &text)
			if text == "" {
				var parts []ContentPart
				if err := json.Unmarshal(m.Content, &parts); err == nil {
					for _, p := range parts {
						text += p.Text
					}
				}
			}
			req.System += text
			continue
		}
		msg := pipeline.Message{Role: m.Role, Name: m.Name, ToolCallID: m.ToolCallID}
		msg.Content = decodeChatContent(m.Content)
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, pipeline.ToolCall{
				ID: tc.ID, Type: tc.Type,
				Function: pipeline.ToolFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		req.Messages = append(req.Messages, msg)
	}
	return req, nil
}

// ContentPart is the minimal shape shared by Chat's content-array form and
// the Responses content-part form: {"type":"text","text":"..."}.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func decodeChatContent(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []pipeline.ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return blocks
	}
	return string(raw)
}

func encodeChatRequest(req *pipeline.Request) ([]byte, error) {
	wire := chatWireRequest{
		Model: req.Model, Stream: req.Stream, MaxTokens: req.MaxTokens,
		Temperature: req.Temperature, ToolChoice: req.ToolChoice,
	}
	for _, t := range req.Tools {
		var wt chatWireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.InputSchema
		wire.Tools = append(wire.Tools, wt)
	}
	if req.System != "" {
		wire.Messages = append(wire.Messages, chatWireMessage{Role: "system", Content: mustJSON(req.System)})
	}
	for _, m := range req.Messages {
		wm := chatWireMessage{Role: m.Role, Name: m.Name, ToolCallID: m.ToolCallID}
		wm.Content = mustJSON(m.Content)
		for _, tc := range m.ToolCalls {
			var ctc chatToolCall
			ctc.ID, ctc.Type = tc.ID, tc.Type
			ctc.Function.Name = tc.Function.Name
			ctc.Function.Arguments = tc.Function.Arguments
			wm.ToolCalls = append(wm.ToolCalls, ctc)
		}
		wire.Messages = append(wire.Messages, wm)
	}
	return json.Marshal(wire)
}

func decodeChatResponse(body []byte) (*Result, error) {
	var wire chatWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindConversion, err, "decoding chat response: %v", err).WithStatus(502)
	}
	if len(wire.Choices) == 0 {
		return nil, rcerrors.New(rcerrors.KindConversion, "chat response has no choices").WithStatus(502)
	}
	choice := wire.Choices[0]
	cr := &Result{ID: wire.ID, Model: wire.Model, FinishReason: choice.FinishReason}
	if s, ok := decodeChatContent(choice.Message.Content).(string); ok && s != "" {
		cr.Blocks = append(cr.Blocks, pipeline.ContentBlock{Type: "text", Text: s})
	} else if blocks, ok := decodeChatContent(choice.Message.Content).([]pipeline.ContentBlock); ok {
		cr.Blocks = append(cr.Blocks, blocks...)
	}
	for _, tc := range choice.Message.ToolCalls {
		cr.ToolCalls = append(cr.ToolCalls, pipeline.ToolCall{
			ID: tc.ID, Type: tc.Type,
			Function: pipeline.ToolFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	if wire.Usage != nil {
		cr.TokensIn, cr.TokensOut = wire.Usage.PromptTokens, wire.Usage.CompletionTokens
	}
	return cr, nil
}

func encodeChatResponse(cr *Result) ([]byte, error) {
	msg := chatWireMessage{Role: "assistant"}
	text := blocksToText(cr.Blocks)
	msg.Content = mustJSON(text)
	for _, tc := range cr.ToolCalls {
		var ctc chatToolCall
		ctc.ID, ctc.Type = tc.ID, "function"
		ctc.Function.Name = tc.Function.Name
		ctc.Function.Arguments = tc.Function.Arguments
		msg.ToolCalls = append(msg.ToolCalls, ctc)
	}
	wire := chatWireResponse{
		ID: cr.ID, Object: "chat.completion", Model: cr.Model,
		Choices: []chatWireChoice{{Index: 0, Message: msg, FinishReason: cr.FinishReason}},
		Usage: &chatWireUsage{
			PromptTokens: cr.TokensIn, CompletionTokens: cr.TokensOut,
			TotalTokens: cr.TokensIn + cr.TokensOut,
		},
	}
	return json.Marshal(wire)
}

// --- Anthropic <-> canonical ---

func decodeAnthropicRequest(body []byte) (*pipeline.Request, error) {
	var wire anthropicWireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindValidation, err, "decoding anthropic request: %v", err)
	}
	req := &pipeline.Request{
		InboundProtocol: pipeline.ProtocolAnthropic,
		Protocol:        pipeline.ProtocolAnthropic,
		Model:           wire.Model, Stream: wire.Stream,
		MaxTokens: wire.MaxTokens, Temperature: wire.Temperature,
	}
	if len(wire.System) > 0 {
		var s string
		if err := json.Unmarshal(wire.System, &s); err == nil {
			req.System = s
		} else {
			var blocks []pipeline.ContentBlock
			if err := json.Unmarshal(wire.System, &blocks); err == nil {
				req.SystemBlocks = blocks
				req.System = blocksToText(blocks)
			}
		}
	}
	for _, t := range wire.Tools {
		req.Tools = append(req.Tools, pipeline.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	for _, m := range wire.Messages {
		msg := pipeline.Message{Role: m.Role}
		var blocks []anthropicContentBlock
		if err := json.Unmarshal(m.Content, &blocks); err == nil {
			var pbs []pipeline.ContentBlock
			for _, b := range blocks {
				switch b.Type {
				case "tool_use":
					msg.ToolCalls = append(msg.ToolCalls, pipeline.ToolCall{
						ID: b.ID, Type: "function",
						Function: pipeline.ToolFunction{Name: b.Name, Arguments: argsToString(b.Input)},
					})
				case "tool_result":
					msg.Role = "tool"
					msg.ToolCallID = b.ToolUseID
					if s, ok := b.Content.(string); ok {
						msg.Content = s
					} else {
						msg.Content = fmt.Sprintf("%v", b.Content)
					}
				default:
					pbs = append(pbs, pipeline.ContentBlock{Type: b.Type, Text: b.Text})
				}
			}
			if msg.Content == nil {
				msg.Content = pbs
			}
		} else {
			var text string
			_ = json.Unmarshal(m.Content, &text)
			msg.Content = text
		}
		req.Messages = append(req.Messages, msg)
	}
	return req, nil
}

func encodeAnthropicRequest(req *pipeline.Request) ([]byte, error) {
	wire := anthropicWireRequest{
		Model: req.Model, Stream: req.Stream,
		MaxTokens: req.MaxTokens, Temperature: req.Temperature,
	}
	if req.MaxTokens == 0 {
		wire.MaxTokens = 4096
	}
	if req.System != "" {
		wire.System = mustJSON(req.System)
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, anthropicWireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "tool" {
			role = "user"
			block := anthropicContentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			wire.Messages = append(wire.Messages, anthropicWireMessage{Role: role, Content: mustJSON([]anthropicContentBlock{block})})
			continue
		}
		var blocks []anthropicContentBlock
		switch c := m.Content.(type) {
		case string:
			if c != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: c})
			}
		case []pipeline.ContentBlock:
			for _, b := range c {
				blocks = append(blocks, anthropicContentBlock{Type: b.Type, Text: b.Text})
			}
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, anthropicContentBlock{
				Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: argsToValue(tc.Function.Arguments),
			})
		}
		wire.Messages = append(wire.Messages, anthropicWireMessage{Role: role, Content: mustJSON(blocks)})
	}
	return json.Marshal(wire)
}

func decodeAnthropicResponse(body []byte) (*Result, error) {
	var wire anthropicWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindConversion, err, "decoding anthropic response: %v", err).WithStatus(502)
	}
	cr := &Result{
		ID: wire.ID, Model: wire.Model, FinishReason: stopToFinish(wire.StopReason),
		TokensIn: wire.Usage.InputTokens, TokensOut: wire.Usage.OutputTokens,
	}
	for _, b := range wire.Content {
		if b.Type == "tool_use" {
			cr.ToolCalls = append(cr.ToolCalls, pipeline.ToolCall{
				ID: b.ID, Type: "function",
				Function: pipeline.ToolFunction{Name: b.Name, Arguments: argsToString(b.Input)},
			})
			continue
		}
		cr.Blocks = append(cr.Blocks, pipeline.ContentBlock{Type: b.Type, Text: b.Text})
	}
	return cr, nil
}

func encodeAnthropicResponse(cr *Result) ([]byte, error) {
	wire := anthropicWireResponse{
		ID: cr.ID, Type: "message", Role: "assistant", Model: cr.Model,
		StopReason: finishToStop(cr.FinishReason),
		Usage:      anthropicWireUsage{InputTokens: cr.TokensIn, OutputTokens: cr.TokensOut},
	}
	for _, b := range cr.Blocks {
		wire.Content = append(wire.Content, anthropicContentBlock{Type: "text", Text: b.Text})
	}
	for _, tc := range cr.ToolCalls {
		wire.Content = append(wire.Content, anthropicContentBlock{
			Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: argsToValue(tc.Function.Arguments),
		})
	}
	return json.Marshal(wire)
}

// --- Responses <-> canonical ---

func decodeResponsesRequest(body []byte) (*pipeline.Request, error) {
	var wire responsesWireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindValidation, err, "decoding responses request: %v", err)
	}
	if len(wire.Input) == 0 {
		return nil, rcerrors.New(rcerrors.KindValidation, "responses request input must not be empty").WithStatus(400)
	}
	hasUser := false
	for _, item := range wire.Input {
		if item.Role == "user" {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return nil, rcerrors.New(rcerrors.KindValidation, "responses request input must contain a user message").WithStatus(400)
	}
	req := &pipeline.Request{
		InboundProtocol: pipeline.ProtocolResponses,
		Protocol:        pipeline.ProtocolResponses,
		Model:           wire.Model, Stream: wire.Stream, System: wire.Instructions,
	}
	for _, t := range wire.Tools {
		req.Tools = append(req.Tools, pipeline.Tool{Type: t.Type, Name: t.Function.Name, Description: t.Function.Description, InputSchema: t.Function.Parameters})
	}
	for _, item := range wire.Input {
		switch item.Type {
		case "function_call_output":
			req.Messages = append(req.Messages, pipeline.Message{Role: "tool", ToolCallID: item.CallID, Content: item.Output})
		case "function_call":
			req.Messages = append(req.Messages, pipeline.Message{
				Role: "assistant",
				ToolCalls: []pipeline.ToolCall{{
					ID: item.CallID, Type: "function",
					Function: pipeline.ToolFunction{Name: item.Name, Arguments: item.Arguments},
				}},
			})
		default:
			msg := pipeline.Message{Role: item.Role}
			msg.Content = partsToText(item.Content)
			req.Messages = append(req.Messages, msg)
		}
	}
	return req, nil
}

func encodeResponsesRequest(req *pipeline.Request) ([]byte, error) {
	hasUser := false
	for _, m := range req.Messages {
		if m.Role == "user" {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return nil, rcerrors.New(rcerrors.KindValidation, "request has no user message").WithStatus(400)
	}
	wire := responsesWireRequest{Model: req.Model, Stream: req.Stream, Instructions: req.System}
	for _, t := range req.Tools {
		var wt chatWireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.InputSchema
		wire.Tools = append(wire.Tools, wt)
	}
	for _, m := range req.Messages {
		if m.Role == "tool" {
			text, _ := m.Content.(string)
			wire.Input = append(wire.Input, responsesInputItem{Type: "function_call_output", CallID: m.ToolCallID, Output: text})
			continue
		}
		for _, tc := range m.ToolCalls {
			wire.Input = append(wire.Input, responsesInputItem{
				Type: "function_call", CallID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
			})
		}
		if m.Content == nil {
			continue
		}
		wire.Input = append(wire.Input, responsesInputItem{
			Type: "message", Role: m.Role, Content: textToParts(m.Content),
		})
	}
	return json.Marshal(wire)
}

func decodeResponsesResponse(body []byte) (*Result, error) {
	var wire responsesWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindConversion, err, "decoding responses response: %v", err).WithStatus(502)
	}
	cr := &Result{ID: wire.ID, Model: wire.Model}
	hadToolCall := false
	for _, out := range wire.Output {
		switch out.Type {
		case "function_call":
			hadToolCall = true
			cr.ToolCalls = append(cr.ToolCalls, pipeline.ToolCall{
				ID: out.CallID, Type: "function",
				Function: pipeline.ToolFunction{Name: out.Name, Arguments: out.Arguments},
			})
		case "message":
			for _, part := range out.Content {
				cr.Blocks = append(cr.Blocks, pipeline.ContentBlock{Type: "text", Text: part.Text})
			}
		}
	}
	if wire.RequiredAction != nil {
		hadToolCall = true
		for _, tc := range wire.RequiredAction.SubmitToolOutputs.ToolCalls {
			cr.ToolCalls = append(cr.ToolCalls, pipeline.ToolCall{
				ID: tc.ID, Type: "function",
				Function: pipeline.ToolFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
	}
	cr.FinishReason = responsesStatusToFinish(wire.Status, hadToolCall)
	if wire.Usage != nil {
		cr.TokensIn, cr.TokensOut = wire.Usage.InputTokens, wire.Usage.OutputTokens
	}
	return cr, nil
}

func encodeResponsesResponse(cr *Result) ([]byte, error) {
	wire := responsesWireResponse{
		ID: cr.ID, Object: "response", Model: cr.Model,
		Status: finishToResponsesStatus(cr.FinishReason),
		Usage:  &responsesUsage{InputTokens: cr.TokensIn, OutputTokens: cr.TokensOut, TotalTokens: cr.TokensIn + cr.TokensOut},
	}
	if text := blocksToText(cr.Blocks); text != "" {
		wire.Output = append(wire.Output, responsesOutputMsg{
			Type: "message", Role: "assistant",
			Content: []responsesContentPart{{Type: "output_text", Text: text}},
		})
	}
	for _, tc := range cr.ToolCalls {
		wire.Output = append(wire.Output, responsesOutputMsg{
			Type: "function_call", CallID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
		})
	}
	if len(cr.ToolCalls) > 0 {
		wire.RequiredAction = &responsesRequiredAction{Type: "submit_tool_outputs"}
		for _, tc := range cr.ToolCalls {
			var ctc chatToolCall
			ctc.ID, ctc.Type = tc.ID, "function"
			ctc.Function.Name = tc.Function.Name
			ctc.Function.Arguments = tc.Function.Arguments
			wire.RequiredAction.SubmitToolOutputs.ToolCalls = append(wire.RequiredAction.SubmitToolOutputs.ToolCalls, ctc)
		}
	}
	return json.Marshal(wire)
}

// --- shared helpers ---

func blocksToText(blocks []pipeline.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == "text" || b.Type == "" {
			out += b.Text
		}
	}
	return out
}

func partsToText(parts []responsesContentPart) string {
	var out string
	for _, p := range parts {
		out += p.Text
	}
	return out
}

func textToParts(content interface{}) []responsesContentPart {
	switch c := content.(type) {
	case string:
		return []responsesContentPart{{Type: "input_text", Text: c}}
	case []pipeline.ContentBlock:
		var parts []responsesContentPart
		for _, b := range c {
			parts = append(parts, responsesContentPart{Type: "input_text", Text: b.Text})
		}
		return parts
	default:
		return nil
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return b
}
