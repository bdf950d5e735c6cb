// Package llmswitch implements the protocol codec stage: bidirectional
// transforms between the Chat, Responses, and Anthropic wire dialects. It
// is the largest single component of the gateway (see SPEC_FULL.md §2).
package llmswitch

import "encoding/json"

// --- Chat wire shapes (OpenAI /v1/chat/completions) ---

type chatWireRequest struct {
	Model       string            `json:"model"`
	Messages    []chatWireMessage `json:"messages"`
	Tools       []chatWireTool    `json:"tools,omitempty"`
	ToolChoice  interface{}       `json:"tool_choice,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type chatWireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatWireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string      `json:"name"`
		Description string      `json:"description,omitempty"`
		Parameters  interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatWireResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Model   string            `json:"model"`
	Choices []chatWireChoice `json:"choices"`
	Usage   *chatWireUsage   `json:"usage,omitempty"`
}

type chatWireChoice struct {
	Index        int             `json:"index"`
	Message      chatWireMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type chatWireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Responses wire shapes (OpenAI /v1/responses) ---

type responsesWireRequest struct {
	Model        string                `json:"model"`
	Input        []responsesInputItem  `json:"input"`
	Instructions string                `json:"instructions,omitempty"`
	Tools        []chatWireTool        `json:"tools,omitempty"`
	Stream       bool                  `json:"stream,omitempty"`
}

type responsesInputItem struct {
	Type      string                  `json:"type"`
	Role      string                  `json:"role,omitempty"`
	Content   []responsesContentPart  `json:"content,omitempty"`
	ID        string                  `json:"id,omitempty"`
	CallID    string                  `json:"call_id,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Arguments string                  `json:"arguments,omitempty"`
	Output    string                  `json:"output,omitempty"`
}

type responsesContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesWireResponse struct {
	ID     string               `json:"id"`
	Object string               `json:"object"`
	Model  string               `json:"model"`
	Status string               `json:"status"`
	Output []responsesOutputMsg `json:"output"`
	RequiredAction *responsesRequiredAction `json:"required_action,omitempty"`
	Usage  *responsesUsage      `json:"usage,omitempty"`
}

type responsesOutputMsg struct {
	Type    string                 `json:"type"`
	ID      string                 `json:"id,omitempty"`
	Role    string                 `json:"role,omitempty"`
	Content []responsesContentPart `json:"content,omitempty"`
	CallID  string                 `json:"call_id,omitempty"`
	Name    string                 `json:"name,omitempty"`
	Arguments string               `json:"arguments,omitempty"`
}

type responsesRequiredAction struct {
	Type               string `json:"type"`
	SubmitToolOutputs  struct {
		ToolCalls []chatToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// --- Anthropic wire shapes (/v1/messages) ---

type anthropicWireRequest struct {
	Model       string                  `json:"model"`
	Messages    []anthropicWireMessage  `json:"messages"`
	System      json.RawMessage         `json:"system,omitempty"`
	Tools       []anthropicWireTool     `json:"tools,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
	MaxTokens   int                     `json:"max_tokens"`
	Temperature *float64                `json:"temperature,omitempty"`
}

type anthropicWireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicContentBlock struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Input     interface{} `json:"input,omitempty"`
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   interface{} `json:"content,omitempty"`
}

type anthropicWireTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema interface{} `json:"input_schema,omitempty"`
}

type anthropicWireResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicWireUsage      `json:"usage"`
}

type anthropicWireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
