package rating

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream marks any failed call to the rating directory.
	ErrUpstream = errors.New("rating api request failed")
	// ErrMissingField is returned when a payload lacks a field the caller needs.
	ErrMissingField = errors.New("rating api payload is missing a field")
)

// APIError is a non-2xx answer from the directory.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rating api %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrUpstream }
