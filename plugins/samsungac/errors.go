package samsungac

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyToken    = errors.New("smartthings: API token cannot be empty")
	ErrEmptyDeviceID = errors.New("smartthings: device ID cannot be empty")
	ErrUnauthorized  = errors.New("smartthings: unauthorized (invalid or expired token)")
	ErrNotFound      = errors.New("smartthings: resource not found")
	ErrRateLimited   = errors.New("smartthings: rate limited (too many requests)")
	ErrMissingValue  = errors.New("smartthings: attribute missing from status")
)

// APIError is a non-2xx response from the SmartThings API.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("smartthings api error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("smartthings api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match the status-specific sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}
