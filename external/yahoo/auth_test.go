package yahoo

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"golang.org/x/oauth2"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

func writeCredentialFile(t *testing.T, file credentialFile) string {
	t.Helper()

	raw, err := sonic.Marshal(file)
	if err != nil {
		t.Fatalf("marshal credential file: %v", err)
	}
	path := filepath.Join(t.TempDir(), "oauth.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write credential file: %v", err)
	}
	return path
}

func newTokenServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":3600}`))
	}))
}

func newTestManager(t *testing.T, path, tokenURL string) *CredentialManager {
	t.Helper()

	m, err := NewCredentialManager(path, &http.Client{Timeout: 5 * time.Second}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCredentialManager: %v", err)
	}
	if tokenURL != "" {
		m.conf.Endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	}
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m
}

func TestNewCredentialManager_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewCredentialManager(filepath.Join(t.TempDir(), "absent.json"), nil, logging.NewNop())
	if !stderrors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestNewCredentialManager_MissingConsumerPair(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, credentialFile{ConsumerKey: "key-only"})
	_, err := NewCredentialManager(path, nil, logging.NewNop())
	if !stderrors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestCredentialManager_AuthorizationHeader_UsesStoredToken(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, credentialFile{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "stored-access",
		RefreshToken:   "stored-refresh",
		TokenTime:      time.Now().Unix(),
		ExpiresIn:      3600,
	})
	m := newTestManager(t, path, "")

	header, err := m.AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	if header != "Bearer stored-access" {
		t.Fatalf("header = %q", header)
	}
}

func TestCredentialManager_RefreshPersistsRotatedToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := newTokenServer(t, &calls)
	defer server.Close()

	path := writeCredentialFile(t, credentialFile{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		RefreshToken:   "old-refresh",
	})
	m := newTestManager(t, path, server.URL)

	if err := m.Refresh(context.Background(), true); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", got)
	}

	header, err := m.AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	if header != "Bearer new-access" {
		t.Fatalf("header = %q", header)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	var persisted credentialFile
	if err := sonic.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode persisted file: %v", err)
	}
	if persisted.RefreshToken != "new-refresh" {
		t.Fatalf("persisted refresh token = %q", persisted.RefreshToken)
	}
	if persisted.ConsumerKey != "ck" || persisted.ConsumerSecret != "cs" {
		t.Fatalf("persisted consumer pair = %q %q", persisted.ConsumerKey, persisted.ConsumerSecret)
	}
}

func TestCredentialManager_RefreshThrottle(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := newTokenServer(t, &calls)
	defer server.Close()

	path := writeCredentialFile(t, credentialFile{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		RefreshToken:   "old-refresh",
	})
	m := newTestManager(t, path, server.URL)

	if err := m.Refresh(context.Background(), true); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if err := m.Refresh(context.Background(), false); err != nil {
		t.Fatalf("throttled Refresh: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("token endpoint calls = %d, want 1 (second refresh throttled)", got)
	}

	if err := m.Refresh(context.Background(), true); err != nil {
		t.Fatalf("forced Refresh: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("token endpoint calls = %d, want 2 (force bypasses throttle)", got)
	}
}

func TestCredentialManager_ConcurrentRefreshSingleExchange(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Widen the window so racing callers would overlap the exchange.
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	path := writeCredentialFile(t, credentialFile{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		RefreshToken:   "old-refresh",
	})
	m := newTestManager(t, path, server.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Refresh(context.Background(), false); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("token endpoint calls = %d, want 1 (losers serialize and hit the throttle)", got)
	}
	if m.token.RefreshToken != "new-refresh" {
		t.Fatalf("refresh token = %q, want the rotated one", m.token.RefreshToken)
	}
}

func TestCredentialManager_ResetSessionThrottle(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, credentialFile{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "stored-access",
		RefreshToken:   "stored-refresh",
	})
	m := newTestManager(t, path, "")

	if err := m.ResetSession(context.Background()); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if m.token.AccessToken != "" {
		t.Fatal("reset should clear the in-memory access token")
	}

	m.token.AccessToken = "sentinel"
	if err := m.ResetSession(context.Background()); err != nil {
		t.Fatalf("throttled ResetSession: %v", err)
	}
	if m.token.AccessToken != "sentinel" {
		t.Fatal("second reset inside the throttle window should be a no-op")
	}
}

func TestRedactSecret(t *testing.T) {
	t.Parallel()

	got := redactSecret("post https://example?client_secret=s3cret failed", "s3cret")
	if strings.Contains(got, "s3cret") {
		t.Fatalf("secret leaked: %q", got)
	}
}
