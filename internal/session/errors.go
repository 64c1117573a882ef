package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNoRefreshToken indicates a refresh was requested with no stored refresh credential.
	ErrNoRefreshToken = errors.New("session.refresh.no_refresh_token")
	// ErrBackendUnreachable indicates no response was received from the backend.
	ErrBackendUnreachable = errors.New("session.network_unreachable")
	// ErrMalformedResponse indicates the backend returned a 2xx body the client cannot use.
	ErrMalformedResponse = errors.New("session.malformed_response")
)

// BackendError describes a non-2xx response from an auth endpoint. Message
// prefers the backend-provided detail or message fields.
type BackendError struct {
	Status  int
	Message string
}

// Error formats the backend failure with its code.
func (backendErr *BackendError) Error() string {
	return fmt.Sprintf("session.backend_status.%d: %s", backendErr.Status, backendErr.Message)
}

// backendMessage extracts a display message from an error response body,
// falling back to a generic string carrying the status code.
func backendMessage(status int, body io.Reader) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	fallback := fmt.Sprintf("server error %d", status)
	if decodeErr := json.NewDecoder(body).Decode(&payload); decodeErr != nil {
		return fallback
	}
	var detailText string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detailText) == nil && detailText != "" {
		return detailText
	}
	if payload.Message != "" {
		return payload.Message
	}
	return fallback
}

func newBackendError(response *http.Response) *BackendError {
	return &BackendError{
		Status:  response.StatusCode,
		Message: backendMessage(response.StatusCode, response.Body),
	}
}
