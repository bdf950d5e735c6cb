package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/routecodex/routecodex/internal/llmswitch"
	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/rcerrors"
)

// Endpoint describes where and how to reach one provider's wire API.
type Endpoint struct {
	ProviderID string
	BaseURL    string
	Path       string
	// AlwaysStream forces stream=true on the upstream call regardless of
	// what the client asked for (the Responses provider variant).
	AlwaysStream bool
	// ConfigHeaders are static header overrides layered below auth headers
	// (e.g. a pinned API version header).
	ConfigHeaders map[string]string
}

// Credential supplies the per-request auth headers for one provider. Both
// the API-key and OAuth device-code variants built in internal/auth
// implement this.
type Credential interface {
	BuildHeaders(ctx context.Context) (map[string]string, error)
}

// Registry binds provider ids to their Endpoint, Credential, and transport
// policy. It is safe for concurrent use and shared across every pipeline.
type Registry struct {
	Client      *Client
	Retry       RetryPolicy
	Breakers    *BreakerRegistry
	endpoints   map[string]*Endpoint
	credentials map[string]Credential
}

// NewRegistry builds an empty registry over the given transport/retry/
// breaker configuration; use Register to add providers.
func NewRegistry(client *Client, retry RetryPolicy, breakers *BreakerRegistry) *Registry {
	return &Registry{
		Client:      client,
		Retry:       retry,
		Breakers:    breakers,
		endpoints:   make(map[string]*Endpoint),
		credentials: make(map[string]Credential),
	}
}

// Register binds a provider id to its endpoint and credential source.
func (r *Registry) Register(ep *Endpoint, cred Credential) {
	r.endpoints[ep.ProviderID] = ep
	r.credentials[ep.ProviderID] = cred
}

// Stage is the Provider pipeline stage. Unlike the other three stages it
// carries per-request mutable state (the produced Response, read by the
// Runner via ResponseProducer immediately after ProcessIncoming returns),
// so a Stage value must be constructed fresh for every pipeline run rather
// than shared across concurrent requests — see NewStage.
type Stage struct {
	pipeline.NoopOutgoing

	registry *Registry
	produced *pipeline.Response
}

// NewStage builds a Provider stage bound to registry. Call this once per
// pipeline execution (it is a cheap struct allocation); never hold one
// Stage value across concurrent requests.
func NewStage(registry *Registry) *Stage {
	return &Stage{registry: registry}
}

func (s *Stage) Name() string { return "provider" }

// Produced returns the Response this stage's ProcessIncoming built, or nil
// if ProcessIncoming has not run (or failed before producing one). The
// Runner calls this immediately after ProcessIncoming in the same
// goroutine, so no synchronization is needed for this single handoff.
func (s *Stage) Produced() *pipeline.Response {
	return s.produced
}

func (s *Stage) ProcessIncoming(ctx context.Context, req *pipeline.Request) (*pipeline.Request, error) {
	ep, ok := s.registry.endpoints[req.Route.ProviderID]
	if !ok {
		return nil, rcerrors.New(rcerrors.KindNotFound, "no endpoint registered for provider %q", req.Route.ProviderID).WithStatus(404)
	}
	cred := s.registry.credentials[req.Route.ProviderID]

	breaker := s.registry.Breakers.Get(req.Route.ProviderID)
	if !breaker.Allow() {
		return nil, rcerrors.New(rcerrors.KindPipelineUnavailable, "circuit breaker open for provider %q", req.Route.ProviderID).WithStatus(503)
	}

	body, err := llmswitch.EncodeRequest(req)
	if err != nil {
		return nil, rcerrors.Wrap(rcerrors.KindConversion, err, "encoding upstream request: %v", err).WithStatus(400)
	}

	wantsStream := req.Meta.OutboundStream || req.Stream || ep.AlwaysStream
	url := BuildURL(ep.BaseURL, ep.Path)

	var authHeaders map[string]string
	if cred != nil {
		authHeaders, err = cred.BuildHeaders(ctx)
		if err != nil {
			return nil, rcerrors.Wrap(rcerrors.KindAuthentication, err, "building auth headers: %v", err).WithStatus(401)
		}
	}
	headers := BuildHeaders(ep.ConfigHeaders, authHeaders, wantsStream)
	for k, v := range req.Headers {
		headers.Set(k, v)
	}

	start := time.Now()
	resp, err := withRetry(ctx, s.registry.Retry, wantsStream, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header = headers.Clone()
		return s.registry.Client.Do(ctx, httpReq, wantsStream)
	})
	elapsed := time.Since(start)

	if err != nil {
		breaker.RecordFailure()
		if rce, ok := err.(*rcerrors.Error); ok {
			return nil, rce
		}
		return nil, rcerrors.Wrap(rcerrors.KindUpstreamError, err, "upstream call failed: %v", err).WithStatus(502)
	}

	if resp.StatusCode >= 400 {
		breaker.RecordFailure()
		return nil, mapUpstreamError(resp, req.Route.ProviderID)
	}
	breaker.RecordSuccess()

	out := &pipeline.Response{
		Protocol:       req.Protocol,
		StatusCode:     resp.StatusCode,
		Model:          req.Model,
		UpstreamModel:  req.Model,
		ProcessingTime: elapsed,
	}

	if wantsStream {
		out.Stream = &pipeline.StreamToken{Body: resp.Body, ContentType: resp.Header.Get("Content-Type")}
	} else {
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, rcerrors.Wrap(rcerrors.KindUpstreamError, readErr, "reading upstream response: %v", readErr).WithStatus(502)
		}
		out.Body = data
	}

	s.produced = out
	return req, nil
}

// mapUpstreamError classifies a non-2xx upstream response into the error
// taxonomy, draining and closing the body.
func mapUpstreamError(resp *http.Response, providerID string) *rcerrors.Error {
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	kind := rcerrors.KindUpstreamError
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = rcerrors.KindRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = rcerrors.KindUpstreamClientErr
	case resp.StatusCode == http.StatusGatewayTimeout:
		kind = rcerrors.KindGatewayTimeout
	}

	return rcerrors.New(kind, "upstream %s returned %d", providerID, resp.StatusCode).
		WithStatus(resp.StatusCode).
		WithUpstream(resp.StatusCode, "", string(msg))
}
