package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/routecodex/routecodex/internal/rcerrors"
	"github.com/routecodex/routecodex/internal/tracing"
)

// Snapshotter receives a best-effort, off-critical-path observability
// record at each stage boundary. Implementations must never block the
// pipeline and must swallow their own failures (logging through their own
// non-blocking sink instead of returning an error to the runner).
type Snapshotter interface {
	Snapshot(phase string, req *Request, resp *Response, err error)
}

// NopSnapshotter discards every snapshot.
type NopSnapshotter struct{}

func (NopSnapshotter) Snapshot(string, *Request, *Response, error) {}

func recoverStage(name string, fn func() error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("stage %s: panic: %v", name, r)
		}
	}()
	return fn()
}

// Runner drives a request through the four stages in order: LLMSwitch,
// Workflow, Compatibility, Provider. Compatibility and LLMSwitch see both
// the incoming and outgoing legs; Workflow and Provider typically act on
// only one side (and embed pipeline.NoopIncoming/NoopOutgoing for the
// other).
type Runner struct {
	stages      []Stage
	snapshotter Snapshotter
	maxWait     time.Duration
}

// NewRunner builds a Runner over the given stages, in LLMSwitch -> Workflow
// -> Compatibility -> Provider order. maxWait is the pipelineMaxWaitMs hard
// timeout (0 uses the 300s default).
func NewRunner(snapshotter Snapshotter, maxWait time.Duration, stages ...Stage) *Runner {
	if snapshotter == nil {
		snapshotter = NopSnapshotter{}
	}
	if maxWait <= 0 {
		maxWait = 300 * time.Second
	}
	return &Runner{stages: stages, snapshotter: snapshotter, maxWait: maxWait}
}

// Run executes the full pipeline for req. It always returns either a
// complete Response or a *rcerrors.Error — partial results are never
// returned to the caller.
func (r *Runner) Run(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	timings := make(map[string]time.Duration, len(r.stages)*2)
	ctx = WithStageTimings(ctx, timings)

	r.snapshotter.Snapshot("client-request", req, nil, nil)

	resp, err := r.runDown(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err = r.runUp(ctx, req, resp)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, r.wrap("pipeline", req, ctx.Err())
	default:
	}

	return resp, nil
}

// runDown drives ProcessIncoming across all stages in order. The actual
// upstream call happens inside the Provider stage's ProcessIncoming; right
// after each stage's ProcessIncoming, a stage that implements
// ResponseProducer is asked for its Produced() Response (see provider.Stage).
// runDown returns the last non-nil Response collected this way, for runUp.
func (r *Runner) runDown(ctx context.Context, req *Request) (*Response, error) {
	var last *Response
	for _, st := range r.stages {
		name := st.Name()
		sctx, span := tracing.StartStageSpan(ctx, name, "incoming")
		start := time.Now()

		var nextReq *Request
		err := recoverStage(name, func() error {
			var innerErr error
			nextReq, innerErr = st.ProcessIncoming(sctx, req)
			return innerErr
		})
		if pr, ok := st.(ResponseProducer); ok {
			if produced := pr.Produced(); produced != nil {
				last = produced
			}
		}
		elapsed := time.Since(start)
		if timings, ok := StageTimings(ctx); ok {
			timings[name] = elapsed
		}

		if err != nil {
			tracing.RecordError(sctx, err)
			span.End()
			rce := r.wrap(name, req, err)
			r.snapshotter.Snapshot("provider-error", req, nil, rce)
			return nil, rce
		}
		span.End()

		if nextReq == nil {
			return nil, r.wrap(name, req, fmt.Errorf("stage returned nil request"))
		}
		req = nextReq

		if ctx.Err() != nil {
			return nil, r.wrap(name, req, ctx.Err())
		}
	}
	return last, nil
}

// runUp drives ProcessOutgoing across all stages in reverse order.
func (r *Runner) runUp(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	for i := len(r.stages) - 1; i >= 0; i-- {
		st := r.stages[i]
		name := st.Name()
		sctx, span := tracing.StartStageSpan(ctx, name, "outgoing")
		start := time.Now()

		var nextResp *Response
		err := recoverStage(name, func() error {
			var innerErr error
			nextResp, innerErr = st.ProcessOutgoing(sctx, req, resp)
			return innerErr
		})
		elapsed := time.Since(start)
		if timings, ok := StageTimings(ctx); ok {
			timings[name+".outgoing"] = elapsed
		}

		if err != nil {
			tracing.RecordError(sctx, err)
			span.End()
			return nil, r.wrap(name, req, err)
		}
		span.End()

		if nextResp == nil {
			return nil, r.wrap(name, req, fmt.Errorf("stage returned nil response"))
		}
		resp = nextResp
	}

	r.snapshotter.Snapshot("provider-response", req, resp, nil)
	return resp, nil
}

// wrap composes a stage failure into a *rcerrors.Error carrying
// {stage, pipelineId, requestId, providerKey}, per the Pipeline Runner
// contract. If err is already a *rcerrors.Error it is annotated in place;
// otherwise it is classified as upstream_error.
func (r *Runner) wrap(stage string, req *Request, err error) *rcerrors.Error {
	var rce *rcerrors.Error
	if e, ok := err.(*rcerrors.Error); ok {
		rce = e
	} else if ctxErr, ok := asDeadlineExceeded(err); ok {
		rce = rcerrors.New(rcerrors.KindRequestTimeout, "%s", ctxErr.Error())
	} else {
		rce = rcerrors.Wrap(rcerrors.KindUpstreamError, err, "%s", err.Error())
	}
	rce.Stage = stage
	rce.PipelineID = req.Route.PipelineID
	rce.RequestID = req.Route.RequestID
	rce.ProviderKey = req.Route.ProviderID
	return rce
}

func asDeadlineExceeded(err error) (error, bool) {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return err, true
	}
	return nil, false
}

// ResponseProducer is implemented by a stage whose ProcessIncoming leg is
// responsible for producing the Response (the Provider stage: it is the
// only stage that actually issues the upstream call). Other stages don't
// implement it, and Produced() is never invoked for them.
type ResponseProducer interface {
	Produced() *Response
}
