package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"golang.org/x/time/rate"
)

const (
	// keysRefreshInterval is how often the signing keys are refetched in the
	// background.
	keysRefreshInterval = time.Hour
	// unknownKeyInterval spaces out refetches triggered by an unknown kid.
	unknownKeyInterval = 5 * time.Minute
	// unknownKeyWait is how long a lookup waits for the refetch limiter
	// before failing.
	unknownKeyWait = time.Second
)

type keySetConfig struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// newKeySet serves a provider's published signing keys as a jwt.Keyfunc.
// Fetches run on ctx, never on the caller's request context, and end when ctx
// is cancelled.
func newKeySet(ctx context.Context, cfg keySetConfig) (keyfunc.Keyfunc, error) {
	u, err := url.ParseRequestURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse keys url: %w", err)
	}

	remote, err := jwkset.NewStorageFromHTTP(u, jwkset.HTTPClientStorageOptions{
		Client:                    cfg.HTTPClient,
		Ctx:                       ctx,
		HTTPTimeout:               cfg.Timeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			cfg.Logger.WarnContext(ctx, "signing key refresh failed", "url", cfg.URL, "error", err)
		},
		RefreshInterval: keysRefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("signing keys storage: %w", err)
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{cfg.URL: remote},
		RateLimitWaitMax:  unknownKeyWait,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(unknownKeyInterval), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("signing keys client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("signing keys keyfunc: %w", err)
	}
	return kf, nil
}
