package workflow

import (
	"context"

	"github.com/routecodex/routecodex/internal/llmswitch"
	"github.com/routecodex/routecodex/internal/pipeline"
)

// Stage is the Workflow pipeline stage: it reconciles what the client asked
// for (req.Meta.InboundStream) against what the upstream actually returned
// (resp.Stream != nil), converting between SSE and JSON as needed, and
// between dialects when req.InboundProtocol != resp.Protocol. It only acts
// on the outgoing leg — incoming requests pass through unchanged, since the
// decision to stream upstream is made earlier by Compatibility/Provider.
type Stage struct {
	pipeline.NoopIncoming
}

// New builds a Workflow stage.
func New() *Stage { return &Stage{} }

func (s *Stage) Name() string { return "workflow" }

func (s *Stage) ProcessOutgoing(ctx context.Context, req *pipeline.Request, resp *pipeline.Response) (*pipeline.Response, error) {
	wantsStream := req.Meta.InboundStream
	gotStream := resp.Stream != nil

	switch {
	case wantsStream && gotStream:
		resp.Stream.Body = translateStream(ctx, resp.Stream.Body, resp.Protocol, req.InboundProtocol)
		resp.Stream.ContentType = "text/event-stream"
		resp.Protocol = req.InboundProtocol
		return resp, nil

	case !wantsStream && gotStream:
		acc, err := collectStream(ctx, resp.Stream.Body, resp.Protocol)
		resp.Stream = nil
		resp.TokensOut = acc.tokensOut
		body, encErr := llmswitch.EncodeResponse(req.InboundProtocol, acc.toResult())
		resp.Protocol = req.InboundProtocol
		resp.Body = body
		if err != nil {
			return resp, err
		}
		return resp, encErr

	case wantsStream && !gotStream:
		acc := accumulatorFromBody(resp.Protocol, resp.Body, resp.Model)
		resp.Stream = &pipeline.StreamToken{
			Body:        wrapJSONAsStream(acc, req.InboundProtocol),
			ContentType: "text/event-stream",
		}
		resp.Body = nil
		resp.Protocol = req.InboundProtocol
		return resp, nil

	default: // !wantsStream && !gotStream
		return resp, nil // llmswitch's ProcessOutgoing already handled the dialect conversion
	}
}

// toResult adapts the neutral accumulator to llmswitch.Result so a drained
// stream can be re-encoded with the same encoder ordinary JSON bodies use.
func (a *canonicalAccumulator) toResult() *llmswitch.Result {
	return &llmswitch.Result{
		Model:        a.model,
		Blocks:       a.toBlocks(),
		ToolCalls:    a.toolCalls,
		FinishReason: a.finishReason,
		TokensIn:     a.tokensIn,
		TokensOut:    a.tokensOut,
	}
}

// accumulatorFromBody decodes a fully-materialized JSON body (in its own
// protocol) back into the neutral accumulator shape, so it can be replayed
// as a one-shot SSE burst via wrapJSONAsStream.
func accumulatorFromBody(protocol pipeline.Protocol, body []byte, fallbackModel string) *canonicalAccumulator {
	acc := newAccumulator()
	acc.model = fallbackModel
	cr, err := llmswitch.DecodeResponse(protocol, body)
	if err != nil {
		return acc
	}
	if cr.Model != "" {
		acc.model = cr.Model
	}
	for _, b := range cr.Blocks {
		acc.text += b.Text
	}
	acc.finishReason = cr.FinishReason
	acc.toolCalls = cr.ToolCalls
	acc.tokensIn = cr.TokensIn
	acc.tokensOut = cr.TokensOut
	return acc
}
