package compatibility

import "github.com/routecodex/routecodex/internal/pipeline"

// SanitizeTools mutates tools in place, stripping schema shapes that some
// providers reject outright rather than ignore: `oneOf` unions (several
// backends 400 on them), the `strict` flag (an OpenAI-only addition), and
// the `shell.command` parameter shape some agent frameworks emit as a bare
// string where the declared type is `array<string>`.
func SanitizeTools(tools []pipeline.Tool) {
	for i := range tools {
		schema, ok := tools[i].InputSchema.(map[string]interface{})
		if !ok {
			continue
		}
		sanitizeSchema(schema)
	}
}

func sanitizeSchema(schema map[string]interface{}) {
	delete(schema, "strict")
	delete(schema, "oneOf")

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for name, raw := range props {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		delete(prop, "oneOf")
		if name == "command" && prop["type"] == "string" {
			prop["type"] = "array"
			prop["items"] = map[string]interface{}{"type": "string"}
		}
		if nested, ok := prop["properties"].(map[string]interface{}); ok {
			sanitizeSchema(map[string]interface{}{"properties": nested})
		}
	}
}
