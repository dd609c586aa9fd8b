// Package api is the HTTP client for the ExRay workflows backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// StatusError is a non-2xx response. Message carries the server's
// error body, preferring the detail/message field of a JSON payload.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

func newStatusError(status int, body []byte) *StatusError {
	msg := strings.TrimSpace(string(body))

	var probe struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &probe); err == nil {
		if probe.Detail != "" {
			msg = probe.Detail
		} else if probe.Message != "" {
			msg = probe.Message
		}
	}

	if msg == "" {
		msg = fmt.Sprintf("Request failed with %d", status)
	}
	return &StatusError{StatusCode: status, Message: msg}
}

// TimeoutError means a call's time budget expired before the backend
// answered. It is deliberately distinct from transport failures so
// the UI can tell the user the server is slow rather than down.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s; the backend may be slow or unreachable", e.Op, e.Budget)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsTimeout reports whether err is a budget-exceeded failure.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
