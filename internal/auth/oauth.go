package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/routecodex/routecodex/internal/rcerrors"
)

const (
	defaultRefreshSkew        = 5 * time.Minute
	defaultMaxRefreshAttempts = 3
	defaultRefreshBackoffUnit = 2 * time.Second
)

// PostActivation is an optional hook run after a successful device-code
// exchange (and after every refresh): it lets a provider derive additional
// fields onto the token record, e.g. iFlow's userinfo-derived API key or
// Gemini's project list and highest-tier project selection.
type PostActivation func(ctx context.Context, client *http.Client, rec *TokenRecord) error

// OAuthCredential implements the device-authorization-grant flow described
// in the auth subsystem: initialize() loads a persisted token or runs the
// device flow; buildHeaders() lazily refreshes near-expiry tokens, single-
// flighted per provider so concurrent callers share one refresh.
type OAuthCredential struct {
	ProviderID    string
	ClientID      string
	Scope         string
	DeviceCodeURL string
	TokenURL      string
	TokenPath     string

	RefreshSkew        time.Duration
	MaxRefreshAttempts int

	HTTPClient *http.Client
	Display    func(userCode, verificationURI string)
	Activate   PostActivation

	mu     sync.Mutex
	record *TokenRecord

	refreshGroup singleflightGroup
}

// NewOAuthCredential builds a credential with the spec's documented
// defaults (5 minute refresh skew, 3 refresh attempts, token persisted to
// ~/.<clientId>/oauth_creds.json).
func NewOAuthCredential(providerID, clientID, scope, deviceCodeURL, tokenURL string) *OAuthCredential {
	return &OAuthCredential{
		ProviderID:         providerID,
		ClientID:           clientID,
		Scope:              scope,
		DeviceCodeURL:      deviceCodeURL,
		TokenURL:           tokenURL,
		TokenPath:          defaultTokenPath(clientID),
		RefreshSkew:        defaultRefreshSkew,
		MaxRefreshAttempts: defaultMaxRefreshAttempts,
		HTTPClient:         http.DefaultClient,
	}
}

// Initialize loads a persisted token from disk, falling back to a fresh
// device-code flow when none exists or it fails to decode.
func (c *OAuthCredential) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *OAuthCredential) initializeLocked(ctx context.Context) error {
	if rec, err := loadTokenRecord(c.TokenPath); err == nil {
		c.record = rec
		return nil
	}
	return c.runDeviceFlowLocked(ctx)
}

func (c *OAuthCredential) runDeviceFlowLocked(ctx context.Context) error {
	tok, err := runDeviceFlow(ctx, c.httpClient(), c.DeviceCodeURL, c.TokenURL, c.ClientID, c.Scope, c.Display)
	if err != nil {
		return rcerrors.Wrap(rcerrors.KindAuthentication, err, "device authorization flow for %s: %v", c.ProviderID, err).WithStatus(401)
	}

	rec := &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if rec.TokenType == "" {
		rec.TokenType = "Bearer"
	}

	if c.Activate != nil {
		if err := c.Activate(ctx, c.httpClient(), rec); err != nil {
			return rcerrors.Wrap(rcerrors.KindAuthentication, err, "post-activation for %s: %v", c.ProviderID, err).WithStatus(401)
		}
	}

	if err := saveTokenRecord(c.TokenPath, rec); err != nil {
		return fmt.Errorf("persisting token for %s: %w", c.ProviderID, err)
	}
	c.record = rec
	return nil
}

// BuildHeaders implements provider.Credential. It lazily initializes on
// first use, refreshes a near-expiry token (single-flighted), and prefers
// a derived API key header over the bearer access token.
func (c *OAuthCredential) BuildHeaders(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	needsInit := c.record == nil
	c.mu.Unlock()
	if needsInit {
		if err := c.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	needsRefresh := c.record.nearExpiry(c.refreshSkew())
	c.mu.Unlock()

	if needsRefresh {
		if _, err := c.refreshGroup.do(c.ProviderID, func() (interface{}, error) {
			return nil, c.refresh(ctx)
		}); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record.APIKey != "" {
		return map[string]string{"Authorization": "Bearer " + c.record.APIKey}, nil
	}
	return map[string]string{"Authorization": c.record.TokenType + " " + c.record.AccessToken}, nil
}

// refresh runs the refresh_token grant up to MaxRefreshAttempts times with
// linear backoff. On exhausted attempts it leaves the stale record in
// place and returns an authentication_error; the next request retries the
// refresh with that same record. A new device flow starts only when the
// record holds no refresh token.
func (c *OAuthCredential) refresh(ctx context.Context) error {
	maxAttempts := c.MaxRefreshAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxRefreshAttempts
	}

	c.mu.Lock()
	refreshToken := c.record.RefreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return c.forceNewDeviceFlow(ctx)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * defaultRefreshBackoffUnit):
			}
		}

		rec, err := c.exchangeRefreshToken(ctx, refreshToken)
		if err != nil {
			lastErr = err
			continue
		}
		if c.Activate != nil {
			if err := c.Activate(ctx, c.httpClient(), rec); err != nil {
				lastErr = err
				continue
			}
		}
		if err := saveTokenRecord(c.TokenPath, rec); err != nil {
			return fmt.Errorf("persisting refreshed token for %s: %w", c.ProviderID, err)
		}
		c.mu.Lock()
		c.record = rec
		c.mu.Unlock()
		return nil
	}

	return rcerrors.Wrap(rcerrors.KindAuthentication, lastErr, "refreshing token for %s after %d attempts: %v", c.ProviderID, maxAttempts, lastErr).WithStatus(401)
}

func (c *OAuthCredential) forceNewDeviceFlow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runDeviceFlowLocked(ctx)
}

func (c *OAuthCredential) exchangeRefreshToken(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	tok, err := refreshAccessToken(ctx, c.httpClient(), c.TokenURL, c.ClientID, refreshToken)
	if err != nil {
		return nil, err
	}
	rec := &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = refreshToken
	}
	if rec.TokenType == "" {
		rec.TokenType = "Bearer"
	}
	return rec, nil
}

// ProjectID implements provider.GeminiProjectSource: the highest-tier
// licensed project selected during post-activation, cached on the token
// record.
func (c *OAuthCredential) ProjectID(ctx context.Context) (string, error) {
	if _, err := c.BuildHeaders(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.record.Projects) == 0 {
		return "", fmt.Errorf("no gemini project available for %s", c.ProviderID)
	}
	return c.record.Projects[0], nil
}

func (c *OAuthCredential) refreshSkew() time.Duration {
	if c.RefreshSkew <= 0 {
		return defaultRefreshSkew
	}
	return c.RefreshSkew
}

func (c *OAuthCredential) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
