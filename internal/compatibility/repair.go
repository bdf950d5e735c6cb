package compatibility

import (
	"encoding/json"

	"github.com/routecodex/routecodex/internal/pipeline"
)

// RepairToolArguments fixes a known upstream quirk where a tool call's
// arguments are serialized as a JSON array (positional values) instead of
// the object the declared schema requires. If decoded args are a
// []interface{} and the schema names its properties in declaration order,
// the array is rezipped into an object; anything else passes through
// unchanged, since there is nothing reliable to repair it against.
func RepairToolArguments(calls []pipeline.ToolCall, tools []pipeline.Tool) {
	for i := range calls {
		var arr []interface{}
		if err := json.Unmarshal([]byte(calls[i].Function.Arguments), &arr); err != nil {
			continue
		}
		schema := schemaFor(calls[i].Function.Name, tools)
		if schema == nil {
			continue
		}
		obj := zipArrayToObject(arr, schema)
		if obj == nil {
			continue
		}
		if out, err := json.Marshal(obj); err == nil {
			calls[i].Function.Arguments = string(out)
		}
	}
}

func schemaFor(name string, tools []pipeline.Tool) map[string]interface{} {
	for _, t := range tools {
		if t.Name == name {
			if s, ok := t.InputSchema.(map[string]interface{}); ok {
				return s
			}
		}
	}
	return nil
}

// propertyOrder extracts the schema's declared property names the same
// order `encoding/json` would emit them is not guaranteed, so the
// declaration needs to carry ordering as a `[]interface{}` under
// "x-property-order" or fall back to whatever range order Go hands back
// (acceptable: this path only fires for providers already known to emit
// positional arrays, which in practice have schemas the router controls).
func propertyOrder(schema map[string]interface{}) []string {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	if order, ok := schema["x-property-order"].([]interface{}); ok {
		names := make([]string, 0, len(order))
		for _, v := range order {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}

func zipArrayToObject(arr []interface{}, schema map[string]interface{}) map[string]interface{} {
	names := propertyOrder(schema)
	if len(names) == 0 {
		return nil
	}
	obj := make(map[string]interface{}, len(arr))
	for i, v := range arr {
		if i >= len(names) {
			break
		}
		obj[names[i]] = v
	}
	return obj
}

// NormalizeReasoning folds a provider's separate "reasoning_content" field
// (DeepSeek, Qwen reasoning models) into the canonical "reasoning" key so
// downstream encoders only ever look in one place.
func NormalizeReasoning(m map[string]interface{}) {
	if v, ok := m["reasoning_content"]; ok {
		delete(m, "reasoning_content")
		m["reasoning"] = v
	}
}
