package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sumire/socialauth/internal/domain"
)

const contextKeyClaims = "claims"

// Authenticator validates first-party access tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (domain.Claims, error)
}

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return nil
		}
	}
}

// JWTAuth validates the Bearer access token and injects its claims into echo context.
func JWTAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				return domain.ErrUnauthorized
			}

			claims, err := auth.Authenticate(c.Request().Context(), parts[1])
			if err != nil {
				return err
			}

			c.Set(contextKeyClaims, claims)
			return next(c)
		}
	}
}

// GetClaims returns the access token claims stored by JWTAuth.
func GetClaims(c echo.Context) (domain.Claims, bool) {
	claims, ok := c.Get(contextKeyClaims).(domain.Claims)
	return claims, ok && claims.UUID != ""
}

// GetUserUUID extracts the authenticated user UUID from echo context.
func GetUserUUID(c echo.Context) (string, bool) {
	claims, ok := GetClaims(c)
	return claims.UUID, ok
}

// RateLimit limits requests per client IP with an in-process token bucket.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(_ echo.Context, _ error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			slog.Warn("rate limit exceeded", "ip", identifier, "path", c.Request().URL.Path)
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}
