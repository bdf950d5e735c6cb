package compatibility

import (
	"context"
	"strings"
	"testing"

	"github.com/routecodex/routecodex/internal/pipeline"
)

func TestSanitizeTools_StripsOneOfAndStrictAndNormalizesShellCommand(t *testing.T) {
	tools := []pipeline.Tool{
		{
			Name: "run_shell",
			InputSchema: map[string]interface{}{
				"strict": true,
				"oneOf":  []interface{}{"a", "b"},
				"properties": map[string]interface{}{
					"command": map[string]interface{}{"type": "string"},
				},
			},
		},
	}
	SanitizeTools(tools)

	schema := tools[0].InputSchema.(map[string]interface{})
	if _, ok := schema["strict"]; ok {
		t.Fatalf("expected strict flag stripped")
	}
	if _, ok := schema["oneOf"]; ok {
		t.Fatalf("expected oneOf stripped")
	}
	props := schema["properties"].(map[string]interface{})
	command := props["command"].(map[string]interface{})
	if command["type"] != "array" {
		t.Fatalf("expected command normalized to array, got %+v", command)
	}
	items, ok := command["items"].(map[string]interface{})
	if !ok || items["type"] != "string" {
		t.Fatalf("expected items: {type: string}, got %+v", command["items"])
	}
}

func TestStage_ProcessIncoming_MaxTokensDefaultChain(t *testing.T) {
	stage := New(DefaultAdapters())

	req := &pipeline.Request{MaxTokens: 0}
	req.Route.ProviderID = "qwen"

	out, err := stage.ProcessIncoming(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if out.MaxTokens != 8192 {
		t.Fatalf("expected qwen adapter default 8192, got %d", out.MaxTokens)
	}

	reqWithValue := &pipeline.Request{MaxTokens: 256}
	reqWithValue.Route.ProviderID = "qwen"
	out2, err := stage.ProcessIncoming(context.Background(), reqWithValue)
	if err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if out2.MaxTokens != 256 {
		t.Fatalf("expected request value to win, got %d", out2.MaxTokens)
	}
}

func TestStage_ProcessIncoming_InjectsResponsesBetaHeader(t *testing.T) {
	stage := New(DefaultAdapters())
	req := &pipeline.Request{Headers: map[string]string{}}
	req.Route.ProviderID = "openai-responses"

	out, err := stage.ProcessIncoming(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if out.Headers["OpenAI-Beta"] != "responses-2024-12-17" {
		t.Fatalf("expected beta header injected, got %+v", out.Headers)
	}
}

func TestStage_ProcessOutgoing_CapturesUpstreamModelAndRestoresClientModel(t *testing.T) {
	stage := New(DefaultAdapters())
	req := &pipeline.Request{Model: "deepseek-chat"}
	req.Route.ProviderID = "deepseek"

	body := []byte(`{
		"id": "cmpl_1", "model": "deepseek-reasoner",
		"choices": [{"message": {"role": "assistant", "content": "42", "reasoning_content": "thinking..."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2}
	}`)
	resp := &pipeline.Response{Protocol: pipeline.ProtocolChat, Body: body}

	out, err := stage.ProcessOutgoing(context.Background(), req, resp)
	if err != nil {
		t.Fatalf("ProcessOutgoing: %v", err)
	}
	if out.UpstreamModel != "deepseek-reasoner" {
		t.Fatalf("expected upstream model captured, got %q", out.UpstreamModel)
	}
	if !strings.Contains(string(out.Body), `"model":"deepseek-chat"`) {
		t.Fatalf("expected client-visible model restored, got %s", out.Body)
	}
}

func TestRepairToolArguments_ZipsPositionalArrayIntoObject(t *testing.T) {
	tools := []pipeline.Tool{
		{
			Name: "get_weather",
			InputSchema: map[string]interface{}{
				"x-property-order": []interface{}{"city", "unit"},
				"properties": map[string]interface{}{
					"city": map[string]interface{}{"type": "string"},
					"unit": map[string]interface{}{"type": "string"},
				},
			},
		},
	}
	calls := []pipeline.ToolCall{
		{ID: "call_1", Type: "function", Function: pipeline.ToolFunction{Name: "get_weather", Arguments: `["nyc","f"]`}},
	}
	RepairToolArguments(calls, tools)

	if !strings.Contains(calls[0].Function.Arguments, `"city":"nyc"`) {
		t.Fatalf("expected repaired object arguments, got %q", calls[0].Function.Arguments)
	}
	if !strings.Contains(calls[0].Function.Arguments, `"unit":"f"`) {
		t.Fatalf("expected repaired object arguments, got %q", calls[0].Function.Arguments)
	}
}

func TestApplyMapping_RenamesAndTransforms(t *testing.T) {
	m := map[string]interface{}{"finishReason": "STOP", "other": "keep"}
	table := []MappingEntry{
		{SourcePath: "finishReason", TargetPath: "finish_reason", Direction: DirectionOutgoing, Transform: "normalizeFinishReason"},
	}
	ApplyMapping(DirectionOutgoing, m, table)

	if _, ok := m["finishReason"]; ok {
		t.Fatalf("expected source key removed after rename")
	}
	if m["finish_reason"] != "stop" {
		t.Fatalf("expected normalized+renamed value, got %+v", m["finish_reason"])
	}
	if m["other"] != "keep" {
		t.Fatalf("expected untouched key preserved")
	}
}
