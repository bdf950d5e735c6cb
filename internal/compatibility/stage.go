package compatibility

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"github.com/routecodex/routecodex/internal/llmswitch"
	"github.com/routecodex/routecodex/internal/pipeline"
)

// defaultMaxTokensEnv names the environment variable consulted as the last
// link in the max_tokens default chain, below any adapter-configured
// default.
const defaultMaxTokensEnv = "ROUTECODEX_DEFAULT_MAX_TOKENS"

const fallbackMaxTokens = 8192

// Stage is the Compatibility pipeline stage. It holds one Adapter per
// provider id and applies it on both legs: request-side sanitization and
// header injection on the way down, response-side repair and alias
// normalization on the way up.
type Stage struct {
	adapters map[string]*Adapter
}

// New builds a Compatibility stage from the given adapter table. A nil map
// falls back to DefaultAdapters().
func New(adapters map[string]*Adapter) *Stage {
	if adapters == nil {
		adapters = DefaultAdapters()
	}
	return &Stage{adapters: adapters}
}

func (s *Stage) Name() string { return "compatibility" }

func (s *Stage) adapterFor(providerID string) *Adapter {
	if a, ok := s.adapters[providerID]; ok {
		return a
	}
	return &Adapter{ProviderID: providerID, SanitizeTools: true, DefaultMaxTokens: fallbackMaxTokens}
}

func (s *Stage) ProcessIncoming(ctx context.Context, req *pipeline.Request) (*pipeline.Request, error) {
	adapter := s.adapterFor(req.Route.ProviderID)

	if adapter.SanitizeTools {
		SanitizeTools(req.Tools)
	}

	if len(adapter.BetaHeaders) > 0 {
		if req.Headers == nil {
			req.Headers = make(map[string]string, len(adapter.BetaHeaders))
		}
		for k, v := range adapter.BetaHeaders {
			if _, exists := req.Headers[k]; !exists {
				req.Headers[k] = v
			}
		}
	}

	req.MaxTokens = resolveMaxTokens(req.MaxTokens, adapter.DefaultMaxTokens)

	return req, nil
}

// resolveMaxTokens implements the request-value, adapter-default, env-var,
// hardcoded-fallback chain from SPEC_FULL.md §4.4.
func resolveMaxTokens(requested, adapterDefault int) int {
	if requested > 0 {
		return requested
	}
	if adapterDefault > 0 {
		return adapterDefault
	}
	if v := os.Getenv(defaultMaxTokensEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallbackMaxTokens
}

func (s *Stage) ProcessOutgoing(ctx context.Context, req *pipeline.Request, resp *pipeline.Response) (*pipeline.Response, error) {
	if resp.Stream != nil || len(resp.Body) == 0 {
		// Streaming responses are repaired per-delta where decoded, in the
		// Workflow stage; nothing here has a byte-level hook into them yet.
		return resp, nil
	}

	adapter := s.adapterFor(req.Route.ProviderID)

	resp.Body = foldReasoningContent(resp.Protocol, resp.Body)

	cr, err := llmswitch.DecodeResponse(resp.Protocol, resp.Body)
	if err != nil {
		// Malformed upstream body: let LLMSwitch's own decode surface the error.
		return resp, nil
	}

	cr.FinishReason = applyFinishReasonAlias(cr.FinishReason)
	if len(cr.ToolCalls) > 0 {
		RepairToolArguments(cr.ToolCalls, req.Tools)
	}
	if adapter.ProviderID != "" {
		applyAdapterOutgoingMapping(adapter, cr)
	}

	resp.UpstreamModel = cr.Model
	if req.Model != "" {
		// Restore the client-visible model name; the upstream model id is
		// preserved separately (above) for snapshotting.
		cr.Model = req.Model
	}

	body, err := llmswitch.EncodeResponse(resp.Protocol, cr)
	if err != nil {
		return resp, nil
	}
	resp.Body = body
	return resp, nil
}

// foldReasoningContent normalizes the Chat dialect's reasoning model
// extension (`choices[].message.reasoning_content`, used by DeepSeek-R1 and
// Qwen's reasoning variants) into `reasoning` before llmswitch's Chat
// decoder runs, since that decoder only looks at the message's `content`
// string and would otherwise silently drop it. Other dialects either don't
// carry this field (Responses) or already model reasoning as a first-class
// content block (Anthropic thinking blocks), so this only touches Chat.
func foldReasoningContent(protocol pipeline.Protocol, body []byte) []byte {
	if protocol != pipeline.ProtocolChat {
		return body
	}
	var wire map[string]interface{}
	if err := json.Unmarshal(body, &wire); err != nil {
		return body
	}
	choices, ok := wire["choices"].([]interface{})
	if !ok {
		return body
	}
	changed := false
	for _, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		msg, ok := choice["message"].(map[string]interface{})
		if !ok {
			continue
		}
		if _, has := msg["reasoning_content"]; has {
			NormalizeReasoning(msg)
			changed = true
		}
	}
	if !changed {
		return body
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return body
	}
	return out
}

func applyFinishReasonAlias(reason string) string {
	if alias, ok := finishReasonAliases[reason]; ok {
		return alias
	}
	return reason
}

// applyAdapterOutgoingMapping runs the adapter's outgoing mapping table
// against a flattened view of the canonical result, for the fields that
// table can meaningfully name (finish_reason, model). Per-wire-shape field
// renames (max_tokens/maxTokens etc) are already absorbed by llmswitch's
// decode, so only the transform side of the table applies here.
func applyAdapterOutgoingMapping(adapter *Adapter, cr *llmswitch.Result) {
	view := map[string]interface{}{
		"finish_reason": cr.FinishReason,
		"model":         cr.Model,
	}
	ApplyMapping(DirectionOutgoing, view, adapter.MappingTable)
	if v, ok := view["finish_reason"].(string); ok {
		cr.FinishReason = v
	}
	if v, ok := view["model"].(string); ok {
		cr.Model = v
	}
}
