// Package social talks to the Kakao and Apple identity providers. Each
// provider has its own adapter; Client dispatches on the provider tag.
package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sumire/socialauth/internal/domain"
	"github.com/sumire/socialauth/internal/metrics"
)

// DefaultTimeout bounds every provider call. Calls are never retried.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of a provider error body is kept for logs.
const maxErrorBody = 512

// Token is what a provider returns for an authorization code.
type Token struct {
	AccessToken string
	IDToken     string
	Expiry      time.Time
}

// Config configures a Client. An adapter is enabled when its ClientID is set.
type Config struct {
	Kakao      KakaoConfig
	Apple      AppleConfig
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    metrics.Recorder
}

// Client resolves provider identities. Close stops its background key
// refreshes.
type Client struct {
	kakao   *kakao
	apple   *apple
	logger  *slog.Logger
	metrics metrics.Recorder
	cancel  context.CancelFunc
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		custom := *cfg.HTTPClient
		if custom.Timeout <= 0 {
			custom.Timeout = timeout
		}
		httpClient = &custom
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{logger: logger, metrics: rec, cancel: cancel}

	if cfg.Kakao.ClientID != "" {
		c.kakao = newKakao(cfg.Kakao, httpClient)
	}
	if cfg.Apple.ClientID != "" {
		a, err := newApple(ctx, cfg.Apple, httpClient, timeout, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("configure apple: %w", err)
		}
		c.apple = a
	}

	return c, nil
}

// Close releases the background work started by New.
func (c *Client) Close() {
	c.cancel()
}

// ExchangeCode trades an authorization code for provider tokens.
func (c *Client) ExchangeCode(ctx context.Context, provider domain.Provider, code string) (*Token, error) {
	if code == "" {
		return nil, &domain.ValidationError{Field: "authCode", Message: "is required"}
	}

	var (
		tok *Token
		err error
	)
	start := time.Now()
	switch {
	case provider == domain.ProviderKakao && c.kakao != nil:
		tok, err = c.kakao.exchange(ctx, code)
	case provider == domain.ProviderApple && c.apple != nil:
		tok, err = c.apple.exchange(ctx, code)
	default:
		return nil, unsupported(provider)
	}
	c.metrics.RecordProviderLatency(string(provider), "exchange", time.Since(start))

	if err != nil {
		return nil, c.fail(provider, "exchange", err)
	}
	return tok, nil
}

// ResolveIdentity returns the stable provider-scoped user id behind tok.
func (c *Client) ResolveIdentity(ctx context.Context, provider domain.Provider, tok *Token) (string, error) {
	var (
		id  string
		err error
	)
	start := time.Now()
	switch {
	case provider == domain.ProviderKakao && c.kakao != nil:
		id, err = c.kakao.identity(ctx, tok)
	case provider == domain.ProviderApple && c.apple != nil:
		id, err = c.apple.identity(ctx, tok)
	default:
		return "", unsupported(provider)
	}
	c.metrics.RecordProviderLatency(string(provider), "identity", time.Since(start))

	if err != nil {
		return "", c.fail(provider, "identity", err)
	}
	return id, nil
}

// Revoke unlinks the user from the provider app.
func (c *Client) Revoke(ctx context.Context, provider domain.Provider, accessToken string) error {
	var err error
	start := time.Now()
	switch {
	case provider == domain.ProviderKakao && c.kakao != nil:
		err = c.kakao.revoke(ctx, accessToken)
	case provider == domain.ProviderApple && c.apple != nil:
		err = c.apple.revoke(ctx, accessToken)
	default:
		return unsupported(provider)
	}
	c.metrics.RecordProviderLatency(string(provider), "revoke", time.Since(start))

	if err != nil {
		return c.fail(provider, "revoke", err)
	}
	return nil
}

func (c *Client) fail(provider domain.Provider, op string, err error) error {
	c.logger.Warn("provider call failed", "provider", provider, "op", op, "error", err)
	return &domain.ProviderAuthError{Provider: provider, Op: op, Err: err}
}

func unsupported(provider domain.Provider) error {
	return &domain.ValidationError{Field: "socialProvider", Message: fmt.Sprintf("unsupported provider %q", provider)}
}

var errEmptyToken = errors.New("provider returned no token")

// statusError reads a bounded slice of a non-2xx response for logging.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("status %d: %s", resp.StatusCode, body)
}
