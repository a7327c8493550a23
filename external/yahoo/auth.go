package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"golang.org/x/oauth2"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

const (
	yahooTokenURL = "https://api.login.yahoo.com/oauth2/get_token"
	yahooAuthURL  = "https://api.login.yahoo.com/oauth2/request_auth"

	// refreshThrottle keeps repeated 401 handling from hammering the
	// token endpoint. A forced refresh bypasses it.
	refreshThrottle = 30 * time.Second

	// resetThrottle bounds how often the whole session can be torn down.
	resetThrottle = 5 * time.Second

	// refreshPropagation is how long a freshly minted token can take to
	// become valid across Yahoo's API fleet.
	refreshPropagation = 1 * time.Second

	tokenExpirySkew = 60 * time.Second
)

// credentialFile mirrors the on-disk OAuth material. The file is written
// back after every successful refresh so a restart picks up the newest
// refresh token.
type credentialFile struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TokenType      string `json:"token_type,omitempty"`
	TokenTime      int64  `json:"token_time,omitempty"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
}

// CredentialManager owns the OAuth2 token lifecycle: loading the
// credential file, refreshing access tokens, persisting rotated refresh
// tokens, and resetting the HTTP session when tokens go persistently
// stale.
type CredentialManager struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger

	conf       *oauth2.Config
	httpClient *http.Client
	token      *oauth2.Token

	lastRefresh time.Time
	lastReset   time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewCredentialManager loads OAuth material from path. A missing file or
// absent consumer key pair is a configuration error, not something a
// retry can fix.
func NewCredentialManager(path string, httpClient *http.Client, logger *logging.Logger) (*CredentialManager, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	m := &CredentialManager{
		path:       path,
		logger:     logger,
		httpClient: httpClient,
		now:        time.Now,
		sleep:      sleepContext,
	}
	if err := m.loadFile(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CredentialManager) loadFile() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("%w: read credential file %s: %v", ErrConfiguration, m.path, err)
	}

	var file credentialFile
	if err := sonic.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("%w: decode credential file %s: %v", ErrConfiguration, m.path, err)
	}
	if strings.TrimSpace(file.ConsumerKey) == "" || strings.TrimSpace(file.ConsumerSecret) == "" {
		return fmt.Errorf("%w: credential file %s is missing consumer_key or consumer_secret", ErrConfiguration, m.path)
	}

	m.conf = &oauth2.Config{
		ClientID:     strings.TrimSpace(file.ConsumerKey),
		ClientSecret: strings.TrimSpace(file.ConsumerSecret),
		Endpoint: oauth2.Endpoint{
			AuthURL:  yahooAuthURL,
			TokenURL: yahooTokenURL,
		},
	}
	m.token = &oauth2.Token{
		AccessToken:  strings.TrimSpace(file.AccessToken),
		RefreshToken: strings.TrimSpace(file.RefreshToken),
		TokenType:    firstNonEmpty(strings.TrimSpace(file.TokenType), "Bearer"),
	}
	if file.TokenTime > 0 && file.ExpiresIn > 0 {
		m.token.Expiry = time.Unix(file.TokenTime, 0).Add(time.Duration(file.ExpiresIn) * time.Second)
	}
	return nil
}

// AuthorizationHeader returns a ready "Bearer ..." value, refreshing the
// access token first when it is missing or about to expire.
func (m *CredentialManager) AuthorizationHeader(ctx context.Context) (string, error) {
	m.mu.Lock()
	stale := m.token.AccessToken == "" || (!m.token.Expiry.IsZero() && m.now().Add(tokenExpirySkew).After(m.token.Expiry))
	m.mu.Unlock()

	if stale {
		if err := m.Refresh(ctx, false); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token available after refresh", ErrAuthentication)
	}
	return "Bearer " + m.token.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token. The lock
// is held across the whole exchange so concurrent callers serialize:
// the winner performs one exchange, and unforced callers arriving
// inside the throttle window afterwards are no-ops. Yahoo rotates
// refresh tokens, so a second exchange racing the first could burn the
// only valid one. After a successful exchange a short pause lets the
// token propagate before reuse.
func (m *CredentialManager) Refresh(ctx context.Context, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && !m.lastRefresh.IsZero() && m.now().Sub(m.lastRefresh) < refreshThrottle {
		return nil
	}
	refreshToken := m.token.RefreshToken
	if refreshToken == "" {
		return fmt.Errorf("%w: no refresh token in credential file", ErrAuthentication)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	fresh, err := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return fmt.Errorf("%w: refresh access token: %v", ErrAuthentication, redactSecret(err.Error(), m.conf.ClientSecret))
	}

	m.token = fresh
	if m.token.RefreshToken == "" {
		m.token.RefreshToken = refreshToken
	}
	m.lastRefresh = m.now()

	if err := m.persistLocked(); err != nil {
		m.logger.WarnContext(ctx, "persist refreshed credentials failed", "path", m.path, "error", err)
	}

	return m.sleep(ctx, refreshPropagation)
}

// ResetSession drops idle connections and reloads credentials from disk.
// It is the escalation after refreshes stop helping, on the theory that
// either the connection pool or the in-memory token state has gone bad.
// Resets are throttled so only the first caller in a window does work.
func (m *CredentialManager) ResetSession(ctx context.Context) error {
	m.mu.Lock()
	if !m.lastReset.IsZero() && m.now().Sub(m.lastReset) < resetThrottle {
		m.mu.Unlock()
		return nil
	}
	m.lastReset = m.now()
	transport := m.httpClient.Transport
	m.mu.Unlock()

	if closer, ok := transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	} else if transport == nil {
		http.DefaultTransport.(*http.Transport).CloseIdleConnections()
	}

	m.logger.WarnContext(ctx, "yahoo session reset", "path", m.path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadFile(); err != nil {
		return err
	}
	// Force the next AuthorizationHeader call through a fresh exchange.
	m.lastRefresh = time.Time{}
	m.token.AccessToken = ""
	return nil
}

// persistLocked writes the current token back to disk. Callers hold mu.
func (m *CredentialManager) persistLocked() error {
	file := credentialFile{
		ConsumerKey:    m.conf.ClientID,
		ConsumerSecret: m.conf.ClientSecret,
		AccessToken:    m.token.AccessToken,
		RefreshToken:   m.token.RefreshToken,
		TokenType:      m.token.TokenType,
		TokenTime:      m.now().Unix(),
	}
	if !m.token.Expiry.IsZero() {
		file.ExpiresIn = int64(m.token.Expiry.Sub(m.now()) / time.Second)
	}

	raw, err := sonic.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}
	if err := os.WriteFile(m.path, raw, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

func redactSecret(value, secret string) string {
	if secret == "" {
		return value
	}
	return strings.ReplaceAll(value, secret, "REDACTED")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
