package pipeline

import "context"

// Stage is implemented by each of the four pipeline stages (LLMSwitch,
// Workflow, Compatibility, Provider). ProcessIncoming runs on the way down
// toward the upstream call; ProcessOutgoing runs on the way back. A stage
// that only cares about one direction implements the other as a no-op.
type Stage interface {
	Name() string

	// ProcessIncoming may mutate and return req, or return a typed error to
	// abort the run (see rcerrors).
	ProcessIncoming(ctx context.Context, req *Request) (*Request, error)

	// ProcessOutgoing may mutate and return resp, or return a typed error.
	// req is the (possibly stage-mutated) request that produced resp.
	ProcessOutgoing(ctx context.Context, req *Request, resp *Response) (*Response, error)
}

// NoopOutgoing can be embedded by stages that only act on the incoming leg
// (the Provider stage: nothing "above" it transforms the response again).
type NoopOutgoing struct{}

func (NoopOutgoing) ProcessOutgoing(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	return resp, nil
}

// NoopIncoming can be embedded by stages that only act on the outgoing leg.
type NoopIncoming struct{}

func (NoopIncoming) ProcessIncoming(ctx context.Context, req *Request) (*Request, error) {
	return req, nil
}
