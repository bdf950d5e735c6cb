package router

import (
	"fmt"
	"strings"
	"sync"
)

// PipelineRef is one pool entry, parsed from either the legacy
// "provider.model" form or the newer "provider.model.keyId" form (which
// defaults keyId to "default" when absent).
type PipelineRef struct {
	PipelineID string
	ProviderID string
	ModelID    string
	KeyID      string
}

// ParsePipelineRef parses a pool entry string into its components.
func ParsePipelineRef(spec string) (PipelineRef, error) {
	parts := strings.Split(spec, ".")
	switch len(parts) {
	case 2:
		return PipelineRef{PipelineID: spec, ProviderID: parts[0], ModelID: parts[1], KeyID: "default"}, nil
	case 3:
		return PipelineRef{PipelineID: spec, ProviderID: parts[0], ModelID: parts[1], KeyID: parts[2]}, nil
	default:
		return PipelineRef{}, fmt.Errorf("invalid pipeline reference %q: expected \"provider.model\" or \"provider.model.keyId\"", spec)
	}
}

// HealthChecker reports whether a provider is currently able to serve
// traffic, so Pool.Next can skip unhealthy entries. A provider-side
// circuit breaker implements this naturally (Allow() as Healthy()).
type HealthChecker interface {
	Healthy(providerID string) bool
}

// AlwaysHealthy treats every provider as healthy; used when no
// HealthChecker is configured.
type AlwaysHealthy struct{}

func (AlwaysHealthy) Healthy(string) bool { return true }

// Pool is the ordered set of pipeline entries serving one route category,
// selected round-robin with health-aware skipping.
type Pool struct {
	mu      sync.Mutex
	entries []PipelineRef
	next    int
}

// NewPool parses specs into a Pool. Returns an error if any entry is
// malformed — per the spec, invalid routes must fail at startup, never at
// request time.
func NewPool(specs []string) (*Pool, error) {
	entries := make([]PipelineRef, 0, len(specs))
	for _, s := range specs {
		ref, err := ParsePipelineRef(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ref)
	}
	return &Pool{entries: entries}, nil
}

// Next returns the next healthy entry in round-robin order, skipping
// unhealthy providers. Returns false if every entry in the pool is
// unhealthy or the pool is empty.
func (p *Pool) Next(health HealthChecker) (PipelineRef, bool) {
	if health == nil {
		health = AlwaysHealthy{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return PipelineRef{}, false
	}
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		ref := p.entries[idx]
		if health.Healthy(ref.ProviderID) {
			p.next = (idx + 1) % n
			return ref, true
		}
	}
	return PipelineRef{}, false
}

// KnownProviders returns the distinct provider ids referenced by the pool,
// used by Router construction to validate pools against registered
// providers at startup.
func (p *Pool) KnownProviders() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.entries {
		if !seen[e.ProviderID] {
			seen[e.ProviderID] = true
			out = append(out, e.ProviderID)
		}
	}
	return out
}
