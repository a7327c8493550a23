package yahoo

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	sonic "github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
	"github.com/calewis/yahoo-matchup/internal/platform/resilience"
)

const (
	defaultBaseURL     = "https://fantasysports.yahooapis.com/fantasy/v2"
	defaultMaxAttempts = 3

	// authRetryPause is the wait after a forced refresh before the
	// request is retried, matching token propagation behaviour.
	authRetryPause = 2 * time.Second

	maxResponseBytes = 6 << 20
)

// credentialSource is the slice of CredentialManager the executor needs.
type credentialSource interface {
	AuthorizationHeader(ctx context.Context) (string, error)
	Refresh(ctx context.Context, force bool) error
	ResetSession(ctx context.Context) error
}

// Recorder receives raw provider payloads for debugging. Implementations
// must not retain the payload slice past the call.
type Recorder interface {
	Record(ctx context.Context, endpoint string, payload []byte)
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Credentials    *CredentialManager
	MaxAttempts    int
	Logger         *logging.Logger
	Recorder       Recorder
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client executes authenticated GET requests against the fantasy API.
// Auth failures escalate through forced token refresh and then a full
// session reset before the request is declared dead. Transient provider
// errors retry with exponential backoff and feed the circuit breaker;
// auth failures do not trip it.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	creds          credentialSource
	maxAttempts    int
	logger         *logging.Logger
	recorder       Recorder
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight

	authFailStreak atomic.Int64

	sleep func(context.Context, time.Duration) error
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Transport == nil {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		creds:          cfg.Credentials,
		maxAttempts:    maxAttempts,
		logger:         logger,
		recorder:       cfg.Recorder,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
		sleep:          sleepContext,
	}
}

// AuthFailureStreak reports how many consecutive requests ended in an
// auth failure. Any non-401 outcome resets it.
func (c *Client) AuthFailureStreak() int64 {
	return c.authFailStreak.Load()
}

// GetJSON fetches path and decodes the response into a generic tree.
// Concurrent identical requests share one round trip.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string) (map[string]any, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "yahoo circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: fantasy API is temporarily unavailable", ErrRequest)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}
	values.Set("format", "json")

	fullURL := c.baseURL + path + "?" + values.Encode()

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, path, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && isCircuitFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}

	if c.recorder != nil {
		c.recorder.Record(ctx, path, raw)
	}

	var tree map[string]any
	if err := sonic.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: decode provider payload: %v", ErrRequest, err)
	}
	return tree, nil
}

func (c *Client) executeRequest(ctx context.Context, path, fullURL string) ([]byte, error) {
	var lastErr error
	sawAuthFailure := false

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		raw, status, err := c.doOnce(ctx, fullURL)
		switch {
		case isCredentialError(err):
			// Credential failures come out of the auth escalation, not
			// the wire; retrying or relabeling them hides the abort
			// signal from callers.
			return nil, err
		case err != nil:
			lastErr = fmt.Errorf("%w: send request: %v", errYahooTransient, err)
		case status >= 200 && status < 300:
			c.authFailStreak.Store(0)
			return raw, nil
		case status == http.StatusUnauthorized:
			sawAuthFailure = true
			streak := c.authFailStreak.Add(1)
			lastErr = fmt.Errorf("provider status=401 body=%s", abbreviateBody(raw))
			c.logger.WarnContext(ctx, "yahoo request unauthorized",
				"path", path,
				"attempt", attempt+1,
				"auth_failure_streak", streak,
			)
			if attempt < c.maxAttempts-1 {
				if refreshErr := c.creds.Refresh(ctx, true); refreshErr != nil {
					return nil, refreshErr
				}
				if sleepErr := c.sleep(ctx, authRetryPause); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			return c.resetAndRetry(ctx, path, fullURL)
		case isRetryableStatus(status):
			sawAuthFailure = false
			c.authFailStreak.Store(0)
			lastErr = fmt.Errorf("%w: provider status=%d body=%s", errYahooTransient, status, abbreviateBody(raw))
		default:
			c.authFailStreak.Store(0)
			return nil, fmt.Errorf("%w: provider status=%d body=%s", ErrRequest, status, abbreviateBody(raw))
		}

		if attempt == c.maxAttempts-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: provider request failed", errYahooTransient)
	}
	if sawAuthFailure {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, lastErr)
	}
	c.logger.WarnContext(ctx, "yahoo request failed", "path", path, "error", lastErr)
	return nil, fmt.Errorf("%w: %v", ErrRequest, lastErr)
}

// resetAndRetry is the last rung of the auth escalation: refresh did not
// clear the 401s, so tear the session down and try exactly once more.
func (c *Client) resetAndRetry(ctx context.Context, path, fullURL string) ([]byte, error) {
	c.logger.WarnContext(ctx, "persistent unauthorized responses, resetting yahoo session",
		"path", path,
		"auth_failure_streak", c.authFailStreak.Load(),
	)
	if err := c.creds.ResetSession(ctx); err != nil {
		return nil, err
	}

	raw, status, err := c.doOnce(ctx, fullURL)
	if err != nil {
		if isCredentialError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: send request after session reset: %v", ErrRequest, err)
	}
	if status >= 200 && status < 300 {
		c.authFailStreak.Store(0)
		return raw, nil
	}
	if status == http.StatusUnauthorized {
		c.authFailStreak.Add(1)
		return nil, fmt.Errorf("%w: persistent 401 after token refresh and session reset", ErrAuthentication)
	}
	c.authFailStreak.Store(0)
	return nil, fmt.Errorf("%w: provider status=%d after session reset body=%s", ErrRequest, status, abbreviateBody(raw))
}

func (c *Client) doOnce(ctx context.Context, fullURL string) ([]byte, int, error) {
	header, err := c.creds.AuthorizationHeader(ctx)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func isCredentialError(err error) bool {
	return err != nil && (stderrors.Is(err, ErrAuthentication) || stderrors.Is(err, ErrConfiguration))
}

func isCircuitFailure(err error) bool {
	return stderrors.Is(err, errYahooTransient)
}

func abbreviateBody(raw []byte) string {
	const limit = 256
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}
