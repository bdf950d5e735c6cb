package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// refreshAccessToken runs the refresh_token grant against tokenURL.
func refreshAccessToken(ctx context.Context, client *http.Client, tokenURL, clientID, refreshToken string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	defer resp.Body.Close()

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding refresh response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("refresh token grant failed: %s", out.Error)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("refresh response carried no access_token")
	}
	return &out, nil
}
