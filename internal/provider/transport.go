// Package provider implements the Provider pipeline stage: given a fully
// sanitized request payload, headers, and endpoint, issue one upstream HTTP
// call and return either a materialized JSON response or a stream token.
package provider

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/routecodex/routecodex/internal/rcerrors"
	"github.com/routecodex/routecodex/internal/tracing"
)

// defaultTimeout is the non-streaming upstream call timeout.
const defaultTimeout = 60 * time.Second

// Client wraps a connection-pooled http.Client shared across all upstream
// calls. One Client is constructed per gateway instance and handed to every
// provider adapter.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with sensible pooling defaults. timeout
// overrides the per-call default (0 keeps defaultTimeout).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		http: &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Do issues httpReq. For streaming calls (stream=true) the per-call timeout
// is removed so the connection can stay open for the duration of the SSE
// stream; the context deadline (pipelineMaxWaitMs) remains the real bound.
func (c *Client) Do(ctx context.Context, httpReq *http.Request, stream bool) (*http.Response, error) {
	tracing.InjectHeaders(ctx, httpReq)

	client := c.http
	if stream {
		client = &http.Client{Transport: c.http.Transport}
	}

	resp, err := client.Do(httpReq.WithContext(ctx))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, rcerrors.Wrap(rcerrors.KindUpstreamError, err, "upstream request failed: %v", err).WithStatus(502)
	}
	return resp, nil
}

// BuildURL joins base and endpoint the way §4.5 requires: an endpoint that
// is already an absolute URL replaces the base outright; otherwise the two
// are joined with exactly one slash between them.
func BuildURL(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// BuildHeaders layers header sources in the order §4.5 specifies: service
// defaults, then config overrides, then per-request auth headers. Later
// layers win. Accept defaults to application/json unless the caller asked
// for an event-stream.
func BuildHeaders(configOverrides, authHeaders map[string]string, expectStream bool) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if expectStream {
		h.Set("Accept", "text/event-stream")
	} else {
		h.Set("Accept", "application/json")
	}
	for k, v := range configOverrides {
		h.Set(k, v)
	}
	for k, v := range authHeaders {
		h.Set(k, v)
	}
	return h
}
