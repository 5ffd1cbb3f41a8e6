package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransport wraps failures to reach the service or read its reply.
var ErrTransport = errors.New("backend unreachable")

// APIError is an application-level failure: the service answered but the
// envelope status was not "success".
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "an unknown error occurred"
	}
	return msg
}

// HTTPError is a non-2xx response that did not carry a status envelope.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		text = "unexpected status"
	}
	if e.Body == "" {
		return fmt.Sprintf("backend http error: status=%d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("backend http error: status=%d %s: %s", e.StatusCode, text, e.Body)
}

// UserMessage returns the text to show a user for a failed ingestion call.
// Application errors carry the service's own message.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "Processing failed. Please check the server."
	}
	return "An unexpected error occurred."
}

func parseHTTPError(status int, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Status != "" && env.Status != statusSuccess {
		return &APIError{Status: env.Status, Message: env.Message}
	}
	body := strings.TrimSpace(string(raw))
	if len(body) > 512 {
		body = body[:512]
	}
	return &HTTPError{StatusCode: status, Body: body}
}
