package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrSessionExpired marks a 401 that could not be recovered because
	// the refresh token was missing or rejected. The stored credentials
	// have been cleared by the time a caller sees it.
	ErrSessionExpired = errors.New("session expired")

	// ErrMalformedResponse is returned when a successful response is
	// missing fields the client relies on.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx response from the backend. The backend's
// standard error body is {"detail": "...", ...}; any other top-level
// fields (validation errors) are kept in Fields.
//
//	var apiErr *api.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { ... }
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
	Fields     map[string]any
	Body       string

	cause error
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" && len(e.Fields) > 0 {
		msg = formatFields(e.Fields)
	}
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if errors.Is(e.cause, ErrSessionExpired) {
		return fmt.Sprintf("API error (%d): %s (session expired, please log in again)", e.StatusCode, msg)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error { return e.cause }

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Body:       string(body),
	}

	var fields map[string]any
	if json.Unmarshal(body, &fields) == nil {
		if detail, ok := fields["detail"].(string); ok {
			apiErr.Detail = detail
			delete(fields, "detail")
		}
		if len(fields) > 0 {
			apiErr.Fields = fields
		}
	}
	return apiErr
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case []any:
			msgs := make([]string, 0, len(v))
			for _, m := range v {
				msgs = append(msgs, fmt.Sprint(m))
			}
			parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(msgs, "; ")))
		default:
			parts = append(parts, fmt.Sprintf("%s: %v", k, v))
		}
	}
	return strings.Join(parts, ", ")
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
