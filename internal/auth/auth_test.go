package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestAPIKeyCredential_RoundRobin(t *testing.T) {
	cred, err := NewAPIKeyCredential([]string{"a", "b", "c"}, "")
	if err != nil {
		t.Fatalf("NewAPIKeyCredential: %v", err)
	}
	var got []string
	for i := 0; i < 4; i++ {
		h, err := cred.BuildHeaders(context.Background())
		if err != nil {
			t.Fatalf("BuildHeaders: %v", err)
		}
		got = append(got, h["Authorization"])
	}
	want := []string{"Bearer a", "Bearer b", "Bearer c", "Bearer a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestAPIKeyCredential_RequiresAtLeastOneKey(t *testing.T) {
	if _, err := NewAPIKeyCredential(nil, ""); err == nil {
		t.Fatalf("expected error for empty key list")
	}
}

func TestTokenRecord_NearExpiry(t *testing.T) {
	rec := &TokenRecord{ExpiresAt: time.Now().Add(1 * time.Minute)}
	if !rec.nearExpiry(5 * time.Minute) {
		t.Fatalf("expected near expiry with a 5 minute skew over a 1 minute horizon")
	}
	if rec.nearExpiry(10 * time.Second) {
		t.Fatalf("did not expect near expiry with a 10 second skew over a 1 minute horizon")
	}
}

func TestSaveAndLoadTokenRecord_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "oauth_creds.json")

	rec := &TokenRecord{AccessToken: "tok", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour), APIKey: "derived"}
	if err := saveTokenRecord(path, rec); err != nil {
		t.Fatalf("saveTokenRecord: %v", err)
	}

	loaded, err := loadTokenRecord(path)
	if err != nil {
		t.Fatalf("loadTokenRecord: %v", err)
	}
	if loaded.AccessToken != "tok" || loaded.APIKey != "derived" {
		t.Fatalf("unexpected loaded record: %+v", loaded)
	}
}

func TestGeneratePKCE_ProducesDistinctVerifierAndChallenge(t *testing.T) {
	verifier, challenge, err := generatePKCE()
	if err != nil {
		t.Fatalf("generatePKCE: %v", err)
	}
	if verifier == "" || challenge == "" || verifier == challenge {
		t.Fatalf("expected distinct non-empty verifier/challenge, got %q / %q", verifier, challenge)
	}
}

func TestDeviceAuthResponse_TolerantFieldNaming(t *testing.T) {
	var d deviceAuthResponse
	if err := json.Unmarshal([]byte(`{"deviceCode":"dc1","userCode":"ABCD-EFGH","verificationUri":"https://example.com/activate","expiresIn":1800,"interval":5}`), &d); err != nil {
		t.Fatalf("unmarshal camelCase: %v", err)
	}
	if d.DeviceCode != "dc1" || d.UserCode != "ABCD-EFGH" || d.Interval != 5 {
		t.Fatalf("unexpected decode: %+v", d)
	}

	var d2 deviceAuthResponse
	if err := json.Unmarshal([]byte(`{"device_code":"dc2","user_code":"WXYZ","verification_uri_complete":"https://example.com/activate?code=WXYZ","expires_in":900,"interval":10}`), &d2); err != nil {
		t.Fatalf("unmarshal snake_case: %v", err)
	}
	if d2.DeviceCode != "dc2" || d2.VerificationURIComplete == "" {
		t.Fatalf("unexpected decode: %+v", d2)
	}
}

func TestOAuthCredential_DeviceFlowThenBuildHeaders(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/device/code":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"device_code":"dc","user_code":"ABCD","verification_uri":"https://example.com","expires_in":60,"interval":1}`))
		case "/token":
			polls++
			if polls < 2 {
				w.Write([]byte(`{"error":"authorization_pending"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at1","refresh_token":"rt1","token_type":"Bearer","expires_in":3600}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cred := NewOAuthCredential("testprov", "test-client", "scope", srv.URL+"/device/code", srv.URL+"/token")
	cred.TokenPath = filepath.Join(t.TempDir(), "oauth_creds.json")

	// Poll loop sleeps `interval` (1s here) between attempts; the fake
	// server returns authorization_pending once, then succeeds.
	start := time.Now()
	h, err := cred.BuildHeaders(context.Background())
	if err != nil {
		t.Fatalf("BuildHeaders: %v", err)
	}
	if h["Authorization"] != "Bearer at1" {
		t.Fatalf("unexpected header: %v", h)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("device flow took unexpectedly long: %v", time.Since(start))
	}
}

func TestOAuthCredential_PrefersDerivedAPIKey(t *testing.T) {
	cred := NewOAuthCredential("iflow", "client", "scope", "", "")
	cred.TokenPath = filepath.Join(t.TempDir(), "oauth_creds.json")
	rec := &TokenRecord{AccessToken: "at", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour), APIKey: "sk-derived"}
	if err := saveTokenRecord(cred.TokenPath, rec); err != nil {
		t.Fatalf("saveTokenRecord: %v", err)
	}

	h, err := cred.BuildHeaders(context.Background())
	if err != nil {
		t.Fatalf("BuildHeaders: %v", err)
	}
	if h["Authorization"] != "Bearer sk-derived" {
		t.Fatalf("expected derived api key preferred, got %v", h)
	}
}
