package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// deviceAuthResponse is the device-authorization endpoint's response,
// tolerant of both the RFC 8628 snake_case field names and the camelCase
// spelling some of these providers actually emit.
type deviceAuthResponse struct {
	DeviceCode              string `json:"-"`
	UserCode                string `json:"-"`
	VerificationURI         string `json:"-"`
	VerificationURIComplete string `json:"-"`
	ExpiresIn               int    `json:"-"`
	Interval                int    `json:"-"`
}

func (d *deviceAuthResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.DeviceCode = firstString(raw, "device_code", "deviceCode")
	d.UserCode = firstString(raw, "user_code", "userCode")
	d.VerificationURI = firstString(raw, "verification_uri", "verificationUri")
	d.VerificationURIComplete = firstString(raw, "verification_uri_complete", "verificationUriComplete")
	d.ExpiresIn = firstInt(raw, "expires_in", "expiresIn")
	d.Interval = firstInt(raw, "interval")
	if d.DeviceCode == "" {
		return fmt.Errorf("device authorization response missing device_code")
	}
	return nil
}

func firstString(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil {
				return s
			}
		}
	}
	return ""
}

func firstInt(raw map[string]json.RawMessage, keys ...string) int {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			var n int
			if json.Unmarshal(v, &n) == nil {
				return n
			}
		}
	}
	return 0
}

// tokenResponse is the device-token-poll endpoint's success shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

// errAuthorizationPending and errSlowDown are sentinel poll outcomes; every
// other error aborts the flow.
var (
	errAuthorizationPending = errors.New("authorization_pending")
	errSlowDown             = errors.New("slow_down")
)

func requestDeviceCode(ctx context.Context, client *http.Client, deviceCodeURL, clientID, scope, challenge string) (*deviceAuthResponse, error) {
	form := url.Values{
		"client_id":             {clientID},
		"scope":                 {scope},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deviceCodeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}
	defer resp.Body.Close()

	var out deviceAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding device code response: %w", err)
	}
	return &out, nil
}

func pollDeviceToken(ctx context.Context, client *http.Client, tokenURL, clientID, deviceCode, verifier string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":     {clientID},
		"device_code":   {deviceCode},
		"code_verifier": {verifier},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling device token: %w", err)
	}
	defer resp.Body.Close()

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding token poll response: %w", err)
	}

	switch out.Error {
	case "":
		return &out, nil
	case "authorization_pending":
		return nil, errAuthorizationPending
	case "slow_down":
		return nil, errSlowDown
	case "expired_token":
		return nil, fmt.Errorf("device code expired before authorization completed")
	case "access_denied":
		return nil, fmt.Errorf("user denied the authorization request")
	default:
		return nil, fmt.Errorf("device token poll failed: %s", out.Error)
	}
}

// runDeviceFlow drives the full device-authorization-grant exchange:
// request a device code, display it, then poll until the user authorizes
// or the code expires.
func runDeviceFlow(ctx context.Context, client *http.Client, deviceCodeURL, tokenURL, clientID, scope string, display func(userCode, verificationURI string)) (*tokenResponse, error) {
	verifier, challenge, err := generatePKCE()
	if err != nil {
		return nil, err
	}

	auth, err := requestDeviceCode(ctx, client, deviceCodeURL, clientID, scope, challenge)
	if err != nil {
		return nil, err
	}

	uri := auth.VerificationURIComplete
	if uri == "" {
		uri = auth.VerificationURI
	}
	if display != nil {
		display(auth.UserCode, uri)
	}

	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("device code expired before authorization completed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		tok, err := pollDeviceToken(ctx, client, tokenURL, clientID, auth.DeviceCode, verifier)
		switch {
		case err == nil:
			return tok, nil
		case errors.Is(err, errAuthorizationPending):
			continue
		case errors.Is(err, errSlowDown):
			interval = interval * 3 / 2
			continue
		default:
			return nil, err
		}
	}
}
