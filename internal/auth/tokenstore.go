package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// tokenRecordCache holds the on-disk token file in memory per path, so a
// config reload that rebuilds OAuthCredential values for the same
// provider does not re-read the file on every BuildHeaders call. Sized
// generously above any realistic provider count; eviction only matters
// if a deployment churns through many distinct token paths.
var tokenRecordCache, _ = lru.New[string, *TokenRecord](64)

// TokenRecord is the on-disk shape of one provider's persisted OAuth state.
type TokenRecord struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`

	// APIKey, Email, and Projects are populated by providers whose
	// device-code flow exchanges the OAuth token for a derived API key
	// during post-activation (iFlow, Gemini).
	APIKey   string   `json:"apiKey,omitempty"`
	Email    string   `json:"email,omitempty"`
	Projects []string `json:"projects,omitempty"`
}

func (r *TokenRecord) nearExpiry(skew time.Duration) bool {
	return time.Now().Add(skew).After(r.ExpiresAt)
}

// defaultTokenPath returns ~/.<clientID>/oauth_creds.json.
func defaultTokenPath(clientID string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "."+clientID, "oauth_creds.json")
}

// loadTokenRecord returns the TokenRecord for path, preferring the
// in-memory cache over disk so a non-expired token never costs an I/O
// round trip after the first load.
func loadTokenRecord(path string) (*TokenRecord, error) {
	if rec, ok := tokenRecordCache.Get(path); ok {
		return rec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding token record %s: %w", path, err)
	}
	tokenRecordCache.Add(path, &rec)
	return &rec, nil
}

// saveTokenRecord persists rec to path atomically: write to a temp file in
// the same directory, then rename over the destination.
func saveTokenRecord(path string, rec *TokenRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".oauth_creds-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp token file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("setting token file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp token file into place: %w", err)
	}
	tokenRecordCache.Add(path, rec)
	return nil
}
