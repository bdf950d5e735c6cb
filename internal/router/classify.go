package router

import (
	"regexp"

	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/tokenizer"
)

// Category is the route bucket the classifier assigns an inbound request
// to. A Pool is configured per category.
type Category string

const (
	CategoryShort       Category = "short"
	CategoryMedium      Category = "medium"
	CategoryLong        Category = "long"
	CategoryVeryLong    Category = "very_long"
	CategoryLongContext Category = "longcontext"
	CategoryWebSearch   Category = "webSearch"
	CategoryThinking    Category = "thinking"
)

// Thresholds holds the token-count cutoffs between the size buckets.
// Defaults match the documented defaults: short < 1000, medium < 8000,
// long < 32000, very_long >= 32000, and the longcontext override at
// 24000 regardless of any other signal.
type Thresholds struct {
	Short       int
	Medium      int
	Long        int
	LongContext int
}

// DefaultThresholds returns the spec's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Short: 1000, Medium: 8000, Long: 32000, LongContext: 24000}
}

// ModelPattern maps a model-name regex to a forced category, checked
// before any token-count or tool-based classification.
type ModelPattern struct {
	Pattern  *regexp.Regexp
	Category Category
}

// webSearchToolNames are tool names treated as the webSearch heuristic
// class; a request offering any of these always classifies as webSearch.
var webSearchToolNames = map[string]bool{
	"web_search":       true,
	"websearch":        true,
	"browser_search":   true,
	"google_search":    true,
}

// Classifier assigns a Category to an inbound request.
type Classifier struct {
	Thresholds    Thresholds
	ModelPatterns []ModelPattern
	Tokenizer     *tokenizer.Tokenizer
}

// NewClassifier builds a Classifier with the documented default
// thresholds; tok may be nil, in which case token estimation falls back
// to a character-ratio heuristic.
func NewClassifier(tok *tokenizer.Tokenizer, modelPatterns []ModelPattern) *Classifier {
	return &Classifier{Thresholds: DefaultThresholds(), ModelPatterns: modelPatterns, Tokenizer: tok}
}

// Classify returns the Category for req, applying overrides in the
// documented priority order: explicit model-name pattern, then the
// longcontext token threshold, then a webSearch-class tool, then the
// thinking flag, then the plain size bucket.
func (c *Classifier) Classify(req *pipeline.Request) Category {
	for _, mp := range c.ModelPatterns {
		if mp.Pattern != nil && mp.Pattern.MatchString(req.Model) {
			return mp.Category
		}
	}

	tokens := c.estimateTokens(req)
	th := c.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}

	if tokens >= th.LongContext {
		return CategoryLongContext
	}
	if hasWebSearchTool(req.Tools) {
		return CategoryWebSearch
	}
	if isThinkingRequest(req) {
		return CategoryThinking
	}

	switch {
	case tokens < th.Short:
		return CategoryShort
	case tokens < th.Medium:
		return CategoryMedium
	case tokens < th.Long:
		return CategoryLong
	default:
		return CategoryVeryLong
	}
}

// estimateTokens counts tokens across messages, system prompt, and tool
// definitions. It prefers the tiktoken-based Tokenizer when available,
// falling back to a char-ratio estimator (4 characters per token, plus a
// fixed per-message overhead) when it isn't.
func (c *Classifier) estimateTokens(req *pipeline.Request) int {
	if c.Tokenizer != nil {
		msgs := make([]tokenizer.Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			msgs = append(msgs, tokenizer.Message{Role: m.Role, Content: contentText(m.Content), Name: m.Name})
		}
		total := c.Tokenizer.CountMessages(req.Model, msgs)
		if req.System != "" {
			total += c.Tokenizer.CountTokens(req.Model, req.System)
		}
		for _, t := range req.Tools {
			total += c.Tokenizer.CountTokens(req.Model, t.Name+" "+t.Description)
		}
		return total
	}
	return estimateByCharRatio(req)
}

// estimateByCharRatio is the fallback estimator: roughly 4 characters per
// token, with a fixed per-message framing overhead matching the rough
// cost tiktoken reports for chat-formatted messages.
func estimateByCharRatio(req *pipeline.Request) int {
	const charsPerToken = 4
	const perMessageOverhead = 4

	chars := len(req.System)
	for _, m := range req.Messages {
		chars += len(contentText(m.Content))
		chars += perMessageOverhead * charsPerToken
	}
	for _, t := range req.Tools {
		chars += len(t.Name) + len(t.Description)
	}
	return chars / charsPerToken
}

func contentText(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []pipeline.ContentBlock:
		var total string
		for _, b := range v {
			total += b.Text
		}
		return total
	default:
		return ""
	}
}

func hasWebSearchTool(tools []pipeline.Tool) bool {
	for _, t := range tools {
		if webSearchToolNames[t.Name] {
			return true
		}
	}
	return false
}

func isThinkingRequest(req *pipeline.Request) bool {
	if req.Metadata == nil {
		return false
	}
	v, ok := req.Metadata["thinking"]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case map[string]interface{}:
		return len(t) > 0
	default:
		return false
	}
}
