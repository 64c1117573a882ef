package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a terminal failure of one logical authenticated call.
type Kind int

const (
	// KindInvalidRequest marks a precondition failure before any network call.
	KindInvalidRequest Kind = iota + 1
	// KindUnauthenticated marks a call with no usable access credential.
	KindUnauthenticated
	// KindAuthenticationFailed marks a failed refresh; the session is torn down.
	KindAuthenticationFailed
	// KindValidation marks a 422 with a flattened field-error message.
	KindValidation
	// KindServer marks any other non-2xx backend response.
	KindServer
	// KindNetwork marks a timeout or transport failure with no response.
	KindNetwork
)

// Kind sentinels for errors.Is matching.
var (
	ErrInvalidRequest       = errors.New("apiclient.invalid_request")
	ErrUnauthenticated      = errors.New("apiclient.unauthenticated")
	ErrAuthenticationFailed = errors.New("apiclient.authentication_failed")
	ErrValidation           = errors.New("apiclient.validation")
	ErrServer               = errors.New("apiclient.server")
	ErrNetwork              = errors.New("apiclient.network")
)

func sentinelFor(kind Kind) error {
	switch kind {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindAuthenticationFailed:
		return ErrAuthenticationFailed
	case KindValidation:
		return ErrValidation
	case KindServer:
		return ErrServer
	case KindNetwork:
		return ErrNetwork
	default:
		return errors.New("apiclient.unknown")
	}
}

// Error is the single terminal classified error returned per call.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

// Error formats the classified failure.
func (classified *Error) Error() string {
	return fmt.Sprintf("%s: %s", sentinelFor(classified.Kind).Error(), classified.Message)
}

// Unwrap exposes the kind sentinel so errors.Is matches it.
func (classified *Error) Unwrap() error {
	return sentinelFor(classified.Kind)
}

func newError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// serverMessage extracts a display message from a non-2xx body, preferring
// the backend-provided detail or message fields.
func serverMessage(status int, body []byte) string {
	fallback := fmt.Sprintf("server error %d", status)
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if unmarshalErr := json.Unmarshal(body, &payload); unmarshalErr != nil {
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

// flattenValidationDetail turns a structured 422 field-error list into one
// human-readable "field: message[, field: message]" string. The field name is
// the last element of each error's location path.
func flattenValidationDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if unmarshalErr := json.Unmarshal(body, &payload); unmarshalErr != nil || len(payload.Detail) == 0 {
		return "invalid data provided"
	}

	var fieldErrors []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if unmarshalErr := json.Unmarshal(payload.Detail, &fieldErrors); unmarshalErr == nil {
		parts := make([]string, 0, len(fieldErrors))
		for _, fieldError := range fieldErrors {
			fieldName := "unknown"
			if len(fieldError.Loc) > 0 {
				if name, ok := fieldError.Loc[len(fieldError.Loc)-1].(string); ok && name != "" {
					fieldName = name
				}
			}
			parts = append(parts, fieldName+": "+fieldError.Msg)
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
		return "invalid data provided"
	}

	var detailText string
	if unmarshalErr := json.Unmarshal(payload.Detail, &detailText); unmarshalErr == nil && detailText != "" {
		return detailText
	}
	return "invalid data provided"
}
