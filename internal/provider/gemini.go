package provider

import (
	"context"
	"net/http"

	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/rcerrors"
)

// GeminiProjectSource supplies the Cloud Code Assist project id the
// Gemini OAuth token carries (picked by internal/auth's project-list /
// highest-tier-license selection during the OAuth post-activation step).
type GeminiProjectSource interface {
	ProjectID(ctx context.Context) (string, error)
}

// GeminiStage wraps the generic Provider Stage with the two behaviors
// §4.5 calls out as Gemini-specific: the `project` field requirement and
// trying each configured fallback model in order on an HTTP 429 before
// surfacing the error to the caller.
type GeminiStage struct {
	*Stage
	Project   GeminiProjectSource
	Fallbacks []string
}

// NewGeminiStage builds a Gemini-flavored Provider stage over registry.
func NewGeminiStage(registry *Registry, project GeminiProjectSource, fallbacks []string) *GeminiStage {
	return &GeminiStage{Stage: NewStage(registry), Project: project, Fallbacks: fallbacks}
}

func (g *GeminiStage) ProcessIncoming(ctx context.Context, req *pipeline.Request) (*pipeline.Request, error) {
	if g.Project != nil {
		projectID, err := g.Project.ProjectID(ctx)
		if err != nil {
			return nil, rcerrors.Wrap(rcerrors.KindAuthentication, err, "resolving gemini project id: %v", err).WithStatus(401)
		}
		if req.Metadata == nil {
			req.Metadata = map[string]interface{}{}
		}
		req.Metadata["project"] = projectID
	}

	originalModel := req.Model
	models := append([]string{originalModel}, g.Fallbacks...)

	var lastErr error
	for i, model := range models {
		req.Model = model
		_, err := g.Stage.ProcessIncoming(ctx, req)
		if err == nil {
			req.Model = originalModel
			return req, nil
		}
		rce, ok := err.(*rcerrors.Error)
		if !ok || rce.HTTPStatus() != http.StatusTooManyRequests || i == len(models)-1 {
			req.Model = originalModel
			return nil, err
		}
		lastErr = err
	}
	req.Model = originalModel
	return nil, lastErr
}

// Produced delegates to the embedded Stage so the Runner's ResponseProducer
// check still finds the response the last successful attempt built.
func (g *GeminiStage) Produced() *pipeline.Response {
	return g.Stage.Produced()
}
