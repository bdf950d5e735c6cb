package compatibility

// Adapter holds the per-provider configuration the Compatibility stage
// applies on both legs of a request. Built once at startup from the
// tables below rather than hardcoded per-provider branches in the stage
// itself — adding a tenth backend means adding a table entry, not a new
// `case` in a switch.
type Adapter struct {
	ProviderID       string
	MappingTable     []MappingEntry
	BetaHeaders      map[string]string
	DefaultMaxTokens int
	SanitizeTools    bool
}

// DefaultAdapters returns the built-in adapter table for every provider
// family SPEC_FULL.md names. Config may override or extend this at
// startup; absent a config override, these are the values used.
func DefaultAdapters() map[string]*Adapter {
	return map[string]*Adapter{
		"openai-chat": {
			ProviderID:       "openai-chat",
			SanitizeTools:    true,
			DefaultMaxTokens: 4096,
		},
		"openai-responses": {
			ProviderID: "openai-responses",
			BetaHeaders: map[string]string{
				"OpenAI-Beta": "responses-2024-12-17",
			},
			SanitizeTools:    true,
			DefaultMaxTokens: 4096,
		},
		"anthropic": {
			ProviderID: "anthropic",
			MappingTable: []MappingEntry{
				{SourcePath: "max_tokens", TargetPath: "max_tokens", Direction: DirectionIncoming},
				{SourcePath: "stop_reason", TargetPath: "finish_reason", Direction: DirectionOutgoing, Transform: "normalizeFinishReason"},
			},
			SanitizeTools:    true,
			DefaultMaxTokens: 4096,
		},
		"qwen": {
			ProviderID: "qwen",
			MappingTable: []MappingEntry{
				{SourcePath: "finish_reason", TargetPath: "finish_reason", Direction: DirectionOutgoing, Transform: "normalizeFinishReason"},
			},
			SanitizeTools:    true,
			DefaultMaxTokens: 8192,
		},
		"glm": {
			ProviderID:       "glm",
			SanitizeTools:    true,
			DefaultMaxTokens: 8192,
		},
		"iflow": {
			ProviderID:       "iflow",
			SanitizeTools:    true,
			DefaultMaxTokens: 8192,
		},
		"lmstudio": {
			ProviderID:       "lmstudio",
			SanitizeTools:    false,
			DefaultMaxTokens: 4096,
		},
		"gemini": {
			ProviderID: "gemini",
			MappingTable: []MappingEntry{
				{SourcePath: "maxOutputTokens", TargetPath: "max_tokens", Direction: DirectionIncoming},
				{SourcePath: "model", TargetPath: "model", Direction: DirectionOutgoing, Transform: "normalizeModelName"},
				{SourcePath: "finishReason", TargetPath: "finish_reason", Direction: DirectionOutgoing, Transform: "normalizeFinishReason"},
			},
			SanitizeTools:    true,
			DefaultMaxTokens: 8192,
		},
		"deepseek": {
			ProviderID: "deepseek",
			MappingTable: []MappingEntry{
				{SourcePath: "finish_reason", TargetPath: "finish_reason", Direction: DirectionOutgoing, Transform: "normalizeFinishReason"},
			},
			SanitizeTools:    true,
			DefaultMaxTokens: 8192,
		},
	}
}
