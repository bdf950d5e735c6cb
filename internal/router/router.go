// Package router implements the virtual router: it classifies an inbound
// request into a route category, then selects a concrete pipeline from
// that category's pool, round-robin with health-aware skipping.
package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/rcerrors"
)

// Router holds one Pool per route category plus a fallback "default"
// pool, and validates every pool's provider references against a known
// provider set at construction time.
type Router struct {
	classifier *Classifier
	pools      map[Category]*Pool
	defaultID  string
	health     HealthChecker
}

// Config is the declarative shape Router is built from: one pool spec
// list per category, a default pool used when a category has no pool of
// its own (or its pool is exhausted), and the known provider ids used to
// validate every pool reference eagerly.
type Config struct {
	Pools           map[Category][]string
	Default         []string
	KnownProviders  []string
	Thresholds      Thresholds
	ModelPatterns   []ModelPattern
}

// NewRouter validates and builds a Router from cfg. Any pool entry
// referencing a provider id outside KnownProviders fails construction —
// per the spec, invalid routes fail startup, never a request.
func NewRouter(cfg Config, classifier *Classifier, health HealthChecker) (*Router, error) {
	known := make(map[string]bool, len(cfg.KnownProviders))
	for _, p := range cfg.KnownProviders {
		known[p] = true
	}

	pools := make(map[Category]*Pool, len(cfg.Pools))
	for cat, specs := range cfg.Pools {
		pool, err := NewPool(specs)
		if err != nil {
			return nil, fmt.Errorf("pool for category %q: %w", cat, err)
		}
		if err := validateKnown(pool, known); err != nil {
			return nil, fmt.Errorf("pool for category %q: %w", cat, err)
		}
		pools[cat] = pool
	}

	var defaultID string
	if len(cfg.Default) > 0 {
		pool, err := NewPool(cfg.Default)
		if err != nil {
			return nil, fmt.Errorf("default pool: %w", err)
		}
		if err := validateKnown(pool, known); err != nil {
			return nil, fmt.Errorf("default pool: %w", err)
		}
		pools["default"] = pool
		defaultID = "default"
	}

	if classifier == nil {
		classifier = NewClassifier(nil, cfg.ModelPatterns)
	}
	if cfg.Thresholds != (Thresholds{}) {
		classifier.Thresholds = cfg.Thresholds
	}

	return &Router{classifier: classifier, pools: pools, defaultID: defaultID, health: health}, nil
}

func validateKnown(pool *Pool, known map[string]bool) error {
	if len(known) == 0 {
		return nil
	}
	for _, providerID := range pool.KnownProviders() {
		if !known[providerID] {
			return fmt.Errorf("unknown provider %q", providerID)
		}
	}
	return nil
}

// Route classifies req, selects a pipeline from the matching category's
// pool (falling back to the default pool when the category has none, or
// its pool is exhausted of healthy entries), and stamps req.Route.
// Returns a pipeline_unavailable error when neither pool can serve.
func (r *Router) Route(req *pipeline.Request) (*pipeline.RouteDecision, error) {
	category := r.classifier.Classify(req)

	ref, ok := r.selectFrom(category)
	if !ok && r.defaultID != "" {
		ref, ok = r.selectFrom(Category(r.defaultID))
	}
	if !ok {
		return nil, rcerrors.New(rcerrors.KindPipelineUnavailable, "no healthy pipeline for category %q", category).WithStatus(503)
	}

	decision := pipeline.RouteDecision{
		ProviderID:    ref.ProviderID,
		ModelID:       ref.ModelID,
		KeyID:         ref.KeyID,
		PipelineID:    ref.PipelineID,
		RouteCategory: string(category),
		RequestID:     uuid.NewString(),
		Timestamp:     time.Now(),
	}
	req.Route = decision
	if req.Model == "" {
		req.Model = ref.ModelID
	}
	return &decision, nil
}

func (r *Router) selectFrom(category Category) (PipelineRef, bool) {
	pool, ok := r.pools[category]
	if !ok {
		return PipelineRef{}, false
	}
	return pool.Next(r.health)
}

// ListCategories returns the configured route categories, for
// /v1/models-style introspection or admin tooling.
func (r *Router) ListCategories() []Category {
	cats := make([]Category, 0, len(r.pools))
	for c := range r.pools {
		if c == Category(r.defaultID) && r.defaultID == "default" {
			continue
		}
		cats = append(cats, c)
	}
	return cats
}
