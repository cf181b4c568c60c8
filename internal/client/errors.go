package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a non-2xx answer, or a payment the service declined. Error()
// is the message meant for the user.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// TransportError means the service could not be reached or did not answer.
// Error() is the underlying message, unchanged.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is an answer from the backend as opposed to
// a transport problem.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// countsAgainstBreaker keeps 4xx answers and caller cancellations from
// opening a circuit: the service is up in both cases.
func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

// errorMessage extracts the message of an error body: JSON {error} or
// {message} first, then the raw text, then fallback.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Error != "":
			return body.Error
		case body.Message != "":
			return body.Message
		default:
			return fallback
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallback
}

func newAPIError(op operation, status int, raw []byte) *APIError {
	return &APIError{
		Op:         op.name,
		StatusCode: status,
		Message:    errorMessage(raw, op.fallback),
	}
}

func decodeError(op operation, err error) error {
	return fmt.Errorf("%s: decode response: %w", op.name, err)
}
