// Package auth implements the two credential variants RouteCodex backends
// use: a static API-key provider and an OAuth 2.0 device-authorization-grant
// provider with PKCE, token persistence, and single-flight refresh.
package auth

import (
	"context"
	"fmt"
	"sync"
)

// APIKeyCredential cycles through a configured list of API keys, one per
// request, round-robin. A single-key configuration degenerates to always
// returning that key.
type APIKeyCredential struct {
	mu     sync.Mutex
	keys   []string
	next   int
	header string
}

// NewAPIKeyCredential builds a credential over keys, sent as the given
// header name (default "Authorization" with a "Bearer " prefix when header
// is empty).
func NewAPIKeyCredential(keys []string, header string) (*APIKeyCredential, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("api key credential requires at least one key")
	}
	if header == "" {
		header = "Authorization"
	}
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &APIKeyCredential{keys: cp, header: header}, nil
}

// BuildHeaders implements provider.Credential.
func (c *APIKeyCredential) BuildHeaders(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	key := c.keys[c.next%len(c.keys)]
	c.next++
	c.mu.Unlock()

	value := key
	if c.header == "Authorization" {
		value = "Bearer " + key
	}
	return map[string]string{c.header: value}, nil
}
