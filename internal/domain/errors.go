package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ProviderAuthError is returned when a social provider rejects a code or token,
// or cannot be reached. Provider response bodies are kept out of Error().
type ProviderAuthError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *ProviderAuthError) Error() string {
	return fmt.Sprintf("%s %s failed", e.Provider, e.Op)
}

func (e *ProviderAuthError) Unwrap() error {
	return e.Err
}

// DataAccessError wraps a durable store failure, or a cache failure on a path
// that cannot tolerate one.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// HashingError is an internal failure of the password hasher.
type HashingError struct {
	Err error
}

func (e *HashingError) Error() string {
	return fmt.Sprintf("password hashing: %v", e.Err)
}

func (e *HashingError) Unwrap() error {
	return e.Err
}
