package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/routecodex/routecodex/internal/llmswitch"
	"github.com/routecodex/routecodex/internal/metrics"
	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/rcerrors"
	"github.com/routecodex/routecodex/internal/router"
	"github.com/routecodex/routecodex/internal/snapshot"
	"github.com/routecodex/routecodex/internal/workflow"
)

// Handler is the HTTP entrypoint for the four-stage pipeline. It decodes a
// client request at the door, routes and runs it, and writes back either a
// materialized JSON body or an SSE stream — the protocol-specific shaping
// on both legs is already done by the time Run returns, so this type only
// does transport plumbing.
type Handler struct {
	NewRunner    RunnerFactory
	Router       *router.Router
	Logger       zerolog.Logger
	MaxBodySize  int64
	HeartbeatMs  int
	ModelCatalog func() []string
	Metrics      *metrics.Collector
}

// connLiveness adapts an http.Request's context to pipeline.ConnLiveness.
type connLiveness struct{ ctx context.Context }

func (c connLiveness) Disconnected() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// endpointFor maps an inbound HTTP path to the protocol it speaks.
func endpointFor(path string) (pipeline.Protocol, string) {
	switch path {
	case "/v1/chat/completions", "/v1/completions":
		return pipeline.ProtocolChat, path
	case "/v1/responses":
		return pipeline.ProtocolResponses, path
	case "/v1/messages":
		return pipeline.ProtocolAnthropic, path
	default:
		return pipeline.ProtocolUnknown, path
	}
}

// handleCompletion is the shared implementation behind every
// protocol-specific completion endpoint: decode, route, run, write.
func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := h.Logger.With().Str("request_id", requestID).Str("path", r.URL.Path).Logger()

	protocol, endpoint := endpointFor(r.URL.Path)
	if protocol == pipeline.ProtocolUnknown {
		writeError(w, rcerrors.New(rcerrors.KindValidation, "unrecognized endpoint %q", r.URL.Path).WithStatus(http.StatusNotFound))
		return
	}

	body, err := readBody(w, r, h.MaxBodySize)
	if err != nil {
		writeError(w, rcerrors.Wrap(rcerrors.KindValidation, err, "reading request body: %v", err).WithStatus(http.StatusRequestEntityTooLarge))
		return
	}

	req, err := llmswitch.DecodeRequest(protocol, body)
	if err != nil {
		writeError(w, normalizeErr(err))
		return
	}

	req.Headers = map[string]string{"X-Request-Id": requestID}
	req.Meta = pipeline.RequestMeta{
		InboundEndpoint: endpoint,
		ClientHeaders:   snapshot.MaskHeaders(flattenHeaders(r.Header)),
		InboundStream:   req.Stream || wantsEventStream(r),
		RawBody:         body,
		Liveness:        connLiveness{ctx: r.Context()},
	}
	req.Route.ClientRequestID = requestID

	if _, err := h.Router.Route(req); err != nil {
		writeError(w, normalizeErr(err))
		return
	}

	if h.Metrics != nil {
		h.Metrics.IncrementActive()
		defer h.Metrics.DecrementActive()
	}

	started := time.Now()
	resp, err := h.NewRunner().Run(r.Context(), req)
	provider, model := req.Route.ProviderID, req.Route.ModelID
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.RecordProviderRequest(provider, "error")
			h.Metrics.RecordError(string(normalizeErr(err).Kind), provider, normalizeErr(err).HTTPStatus())
		}
		logger.Error().Err(err).Msg("pipeline run failed")
		writeError(w, normalizeErr(err))
		return
	}
	if h.Metrics != nil {
		h.Metrics.Record(req, resp)
		h.Metrics.RecordProviderRequest(provider, "success")
		h.Metrics.ObserveLatency(provider, model, req.Meta.InboundStream, time.Since(started).Seconds())
	}

	w.Header().Set("X-Request-Id", requestID)

	if resp.Stream != nil {
		interval := time.Duration(h.HeartbeatMs) * time.Millisecond
		if err := workflow.Pump(r.Context(), w, resp.Stream.Body, interval); err != nil {
			logger.Warn().Err(err).Msg("stream pump ended with error")
		}
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOrOK(resp.StatusCode))
	_, _ = w.Write(resp.Body)
}

// HandleChatCompletions serves POST /v1/chat/completions and /v1/completions.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) { h.handleCompletion(w, r) }

// HandleResponses serves POST /v1/responses.
func (h *Handler) HandleResponses(w http.ResponseWriter, r *http.Request) { h.handleCompletion(w, r) }

// HandleMessages serves POST /v1/messages.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) { h.handleCompletion(w, r) }

// HandleHealth reports process liveness. It does not probe upstream
// providers — that is what a load balancer's readiness check is for, and
// sub-second route health is a spec non-goal, not a /health concern.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// HandleModels lists the model ids the virtual router currently knows how
// to serve, in the OpenAI /v1/models list shape.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	var models []string
	if h.ModelCatalog != nil {
		models = h.ModelCatalog()
	}
	data := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]interface{}{"id": m, "object": "model"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
}

func readBody(w http.ResponseWriter, r *http.Request, maxBodySize int64) ([]byte, error) {
	if maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	}
	return io.ReadAll(r.Body)
}

func wantsEventStream(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream"
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func statusOrOK(code int) int {
	if code == 0 {
		return http.StatusOK
	}
	return code
}

// normalizeErr ensures every error reaching writeError is a *rcerrors.Error,
// classifying a stray non-pipeline error as an internal upstream failure
// rather than leaking a bare Go error string to the client.
func normalizeErr(err error) *rcerrors.Error {
	if rce, ok := err.(*rcerrors.Error); ok {
		return rcerrors.NormalizeTimeout(rce)
	}
	return rcerrors.Wrap(rcerrors.KindUpstreamError, err, "%v", err)
}

func writeError(w http.ResponseWriter, rce *rcerrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rce.HTTPStatus())
	_, _ = w.Write(rce.Body())
}
