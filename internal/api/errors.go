package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAuthExpired means the refresh token was missing or rejected; the user has
// to log in again.
var ErrAuthExpired = errors.New("session expired, login required")

// Error is a non-2xx response from the backend.
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// ValidationError is returned before a request is sent when its body fails
// local validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrAuthExpired) || statusOf(err) == http.StatusUnauthorized
}

// IsValidation reports whether err was caused by rejected input, either
// locally or by the backend (400/422).
func IsValidation(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	status := statusOf(err)
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}

// UserMessage extracts the text that should be shown to the user verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func statusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// errorMessage pulls "message" out of an error body. The backend sends either
// a string or a list of validation messages.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(payload.Message) == 0 {
		return payload.Error
	}
	var text string
	if err := json.Unmarshal(payload.Message, &text); err == nil {
		return text
	}
	var list []string
	if err := json.Unmarshal(payload.Message, &list); err == nil {
		return strings.Join(list, "\n")
	}
	return string(payload.Message)
}
