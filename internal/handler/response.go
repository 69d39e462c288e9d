package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/socialauth/internal/domain"
)

// Envelope wraps error responses.
type Envelope struct {
	Error *APIError `json:"error"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Ack is the body of operations that return no data.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("unhandled error",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}
	if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, APIError) {
	// echo's own HTTP errors (404, 405, 429, bind failures)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{
			Code:    http.StatusText(echoErr.Code),
			Message: msg,
		}
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{
				{Field: validationErr.Field, Message: validationErr.Message},
			},
		}
	}

	var providerErr *domain.ProviderAuthError
	if errors.As(err, &providerErr) {
		return http.StatusUnauthorized, APIError{
			Code:    "provider_auth_failed",
			Message: "Social login failed",
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, APIError{
			Code:    "invalid_refresh_token",
			Message: "The refresh token is invalid, please log in again",
		}
	case errors.Is(err, domain.ErrInvalidAccessToken):
		return http.StatusUnauthorized, APIError{
			Code:    "invalid_access_token",
			Message: "The access token is invalid or revoked",
		}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "Authentication is required",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: "The request body is invalid",
		}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, APIError{
			Code:    "conflict",
			Message: "The nickname is already taken",
		}
	default:
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}
