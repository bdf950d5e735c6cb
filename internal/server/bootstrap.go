// Package server implements RouteCodex's HTTP entrypoint: a chi router
// binding the OpenAI- and Anthropic-compatible surface to the four-stage
// pipeline, plus the wiring that assembles a provider registry, virtual
// router, and pipeline runner from a loaded Config.
//
// The HTTP framing layer itself is an explicit ambient concern rather than
// something the core gateway design elaborates on: this package exists so
// the binary answers requests, not as a subsystem with its own invariants.
package server

import (
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/routecodex/routecodex/internal/auth"
	"github.com/routecodex/routecodex/internal/compatibility"
	"github.com/routecodex/routecodex/internal/config"
	"github.com/routecodex/routecodex/internal/llmswitch"
	"github.com/routecodex/routecodex/internal/pipeline"
	"github.com/routecodex/routecodex/internal/provider"
	"github.com/routecodex/routecodex/internal/router"
	"github.com/routecodex/routecodex/internal/snapshot"
	"github.com/routecodex/routecodex/internal/store"
	"github.com/routecodex/routecodex/internal/tokenizer"
	"github.com/routecodex/routecodex/internal/vault"
	"github.com/routecodex/routecodex/internal/workflow"
)

// keyResolver is the subset of vault.Vault that bootstrap needs; tests
// substitute a fake so they never touch the real OS keyring.
type keyResolver interface {
	ResolveKeyRef(keyRef string) (string, error)
}

// breakerHealth adapts provider.BreakerRegistry to router.HealthChecker:
// a pipeline is healthy exactly when its circuit breaker currently permits
// a call.
type breakerHealth struct {
	breakers *provider.BreakerRegistry
}

func (h breakerHealth) Healthy(providerID string) bool {
	return h.breakers.Get(providerID).Allow()
}

// RunnerFactory builds a fresh Runner for one request. provider.Stage
// carries per-request mutable state (see its doc comment), so a Runner
// cannot be shared across concurrent requests; Handler calls this once per
// inbound call instead of holding a single long-lived Runner.
type RunnerFactory func() *pipeline.Runner

// Build assembles a RunnerFactory and Router from cfg, resolving every
// provider's credentials through vlt and failing fast (returning an error
// rather than a partially wired server) if any provider's config is
// inconsistent with what internal/auth or internal/provider requires.
// Construction-time failure, never request-time failure, matches the
// router's own pool validation philosophy. st is used only when
// cfg.Snapshot.Sink is "sqlite"; callers that leave snapshotting on
// zerolog or nop may pass nil.
func Build(cfg *config.Config, vlt keyResolver, st *store.Store) (RunnerFactory, *router.Router, error) {
	client := provider.NewClient(0)
	retry := provider.RetryPolicy{
		MaxAttempts: cfg.Resilience.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Resilience.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Resilience.RetryMaxDelayMs) * time.Millisecond,
	}
	resetTimeout := time.Duration(cfg.Resilience.CBResetTimeoutSec) * time.Second
	breakers := provider.NewBreakerRegistry(cfg.Resilience.CBFailureThreshold, resetTimeout, cfg.Resilience.CBHalfOpenMax)
	registry := provider.NewRegistry(client, retry, breakers)

	protocolByProvider := make(map[string]pipeline.Protocol, len(cfg.Providers))
	knownProviders := make([]string, 0, len(cfg.Providers))

	for id, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		knownProviders = append(knownProviders, id)
		protocolByProvider[id] = parseProtocol(p.Protocol)

		cred, err := buildCredential(id, p, vlt)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %q: %w", id, err)
		}

		ep := &provider.Endpoint{
			ProviderID:    id,
			BaseURL:       p.APIBase,
			Path:          p.Path,
			AlwaysStream:  p.AlwaysStream,
			ConfigHeaders: configHeaders(p),
		}
		registry.Register(ep, cred)
	}

	pools := make(map[router.Category][]string, len(cfg.Routing.Categories))
	for cat, specs := range cfg.Routing.Categories {
		pools[router.Category(cat)] = specs
	}

	modelPatterns, err := compileModelPatterns(cfg.Routing.ModelPatterns)
	if err != nil {
		return nil, nil, err
	}

	classifier := router.NewClassifier(tokenizer.New(), modelPatterns)
	rt, err := router.NewRouter(router.Config{
		Pools:          pools,
		Default:        cfg.Routing.Default,
		KnownProviders: knownProviders,
		Thresholds: router.Thresholds{
			Short:       cfg.Routing.Thresholds.Short,
			Medium:      cfg.Routing.Thresholds.Medium,
			Long:        cfg.Routing.Thresholds.Long,
			LongContext: cfg.Routing.Thresholds.LongContext,
		},
		ModelPatterns: modelPatterns,
	}, classifier, breakerHealth{breakers: breakers})
	if err != nil {
		return nil, nil, fmt.Errorf("building router: %w", err)
	}

	resolve := func(providerID string) pipeline.Protocol { return protocolByProvider[providerID] }

	var sn pipeline.Snapshotter = pipeline.NopSnapshotter{}
	if cfg.Snapshot.Enabled {
		sn = snapshot.NewRunner(snapshotSink(cfg.Snapshot.Sink, st), cfg.Snapshot.MaxBodyBytes)
	}

	maxWait := time.Duration(cfg.Server.PipelineMaxWaitSec) * time.Second

	// llmswitch, workflow, and compatibility stages hold only read-only
	// config and are safe to share across requests; only the Provider
	// stage needs a fresh value per run, so it is the one thing rebuilt
	// inside the factory.
	llmswitchStage := llmswitch.New(resolve)
	workflowStage := workflow.New()
	compatStage := compatibility.New(nil)

	factory := func() *pipeline.Runner {
		return pipeline.NewRunner(sn, maxWait,
			llmswitchStage,
			workflowStage,
			compatStage,
			provider.NewStage(registry),
		)
	}

	return factory, rt, nil
}

func buildCredential(id string, p config.ProviderConfig, vlt keyResolver) (provider.Credential, error) {
	switch p.AuthType {
	case "oauth":
		if p.OAuth == nil {
			return nil, fmt.Errorf("auth_type oauth requires an oauth block")
		}
		return auth.NewOAuthCredential(id, p.OAuth.ClientID, p.OAuth.Scope, p.OAuth.DeviceCodeURL, p.OAuth.TokenURL), nil
	case "apikey":
		key, err := vlt.ResolveKeyRef(p.KeyRef)
		if err != nil {
			return nil, fmt.Errorf("resolving key_ref: %w", err)
		}
		header := "Authorization"
		if p.Protocol == "anthropic" {
			header = "x-api-key"
		}
		return auth.NewAPIKeyCredential([]string{key}, header)
	default:
		return nil, fmt.Errorf("unsupported auth_type %q", p.AuthType)
	}
}

func configHeaders(p config.ProviderConfig) map[string]string {
	if p.Protocol == "anthropic" {
		return map[string]string{"anthropic-version": "2023-06-01"}
	}
	return nil
}

func parseProtocol(s string) pipeline.Protocol {
	switch s {
	case "responses":
		return pipeline.ProtocolResponses
	case "anthropic":
		return pipeline.ProtocolAnthropic
	default:
		return pipeline.ProtocolChat
	}
}

func compileModelPatterns(cfgPatterns []config.ModelPatternConfig) ([]router.ModelPattern, error) {
	out := make([]router.ModelPattern, 0, len(cfgPatterns))
	for _, mp := range cfgPatterns {
		re, err := regexp.Compile(mp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling model pattern %q: %w", mp.Pattern, err)
		}
		out = append(out, router.ModelPattern{Pattern: re, Category: router.Category(mp.Category)})
	}
	return out, nil
}

func snapshotSink(name string, st *store.Store) snapshot.Sink {
	switch name {
	case "zerolog":
		return snapshot.ZerologSink{Logger: log.Logger}
	case "sqlite":
		return store.SnapshotSink{Store: st}
	default:
		return snapshot.NopSink{}
	}
}

// Compile-time check that *vault.Vault satisfies keyResolver.
var _ keyResolver = (*vault.Vault)(nil)

// ModelCatalogFrom returns a closure listing every model id the enabled
// providers advertise, qualified as "provider.model" to match the pool
// entry syntax the router and config both use. The closure reads cfg fresh
// on each call so a config reload is reflected without rebuilding Handler.
func ModelCatalogFrom(cfg *config.Config) func() []string {
	return func() []string {
		models := make([]string, 0, len(cfg.Providers))
		for id, p := range cfg.Providers {
			if !p.Enabled {
				continue
			}
			for _, m := range p.Models {
				models = append(models, id+"."+m)
			}
		}
		return models
	}
}
