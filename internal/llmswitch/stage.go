package llmswitch

import (
	"context"

	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/rcerrors"
)

// ProtocolResolver reports which wire protocol a given provider speaks, so
// the stage can retarget a request that arrived in one dialect toward a
// provider that speaks another.
type ProtocolResolver func(providerID string) pipeline.Protocol

// Stage is the LLMSwitch pipeline stage: on the way down it retargets the
// request's Protocol field to whatever the routed provider expects; on the
// way back it decodes the upstream's non-streaming response body and
// re-encodes it into the client's original dialect. Streaming bodies are
// left untouched here — the Workflow stage owns per-chunk conversion,
// calling DecodeResponse/EncodeResponse directly for each SSE event.
type Stage struct {
	Resolve ProtocolResolver
}

// New builds a Stage using resolve to map a RouteDecision.ProviderID to the
// upstream protocol it speaks.
func New(resolve ProtocolResolver) *Stage {
	return &Stage{Resolve: resolve}
}

func (s *Stage) Name() string { return "llmswitch" }

// ProcessIncoming retargets req.Protocol to the routed provider's dialect.
// req.InboundProtocol, set when the request was first decoded at the HTTP
// boundary, is left untouched so ProcessOutgoing knows what to rebuild.
func (s *Stage) ProcessIncoming(ctx context.Context, req *pipeline.Request) (*pipeline.Request, error) {
	if req.InboundProtocol == "" {
		req.InboundProtocol = req.Protocol
	}
	if s.Resolve == nil {
		return req, nil
	}
	target := s.Resolve(req.Route.ProviderID)
	if target == "" || target == pipeline.ProtocolUnknown {
		return req, nil
	}
	req.Protocol = target
	return req, nil
}

// ProcessOutgoing converts a fully-materialized (non-streaming) response
// body from the upstream dialect (req.Protocol) to the client's original
// dialect (req.InboundProtocol). Streaming responses pass through: the
// Workflow stage has already produced client-shaped SSE by the time this
// runs, or will consume resp.Stream itself further up the chain.
func (s *Stage) ProcessOutgoing(ctx context.Context, req *pipeline.Request, resp *pipeline.Response) (*pipeline.Response, error) {
	if resp.Stream != nil || len(resp.Body) == 0 {
		return resp, nil
	}
	if req.InboundProtocol == "" || req.InboundProtocol == resp.Protocol {
		return resp, nil
	}

	upstreamProto := resp.Protocol
	if upstreamProto == "" {
		upstreamProto = req.Protocol
	}

	cr, err := DecodeResponse(upstreamProto, resp.Body)
	if err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindConversion, err, "decoding upstream response: %v", err).WithStatus(502)
	}
	if cr.Model == "" {
		cr.Model = resp.Model
	}

	body, err := EncodeResponse(req.InboundProtocol, cr)
	if err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindConversion, err, "encoding client response: %v", err)
	}

	resp.Body = body
	resp.Protocol = req.InboundProtocol
	resp.TokensOut = cr.TokensOut
	if resp.Usage == nil {
		resp.Usage = map[string]interface{}{}
	}
	resp.Usage["prompt_tokens"] = cr.TokensIn
	resp.Usage["completion_tokens"] = cr.TokensOut
	return resp, nil
}
