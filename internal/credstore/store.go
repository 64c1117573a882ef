package credstore

import (
	"context"
	"errors"
)

// Kind names a durable slot in the credential store.
type Kind string

const (
	// KindAccessToken holds the short-lived bearer token.
	KindAccessToken Kind = "access_token"
	// KindRefreshToken holds the long-lived token used to obtain new access tokens.
	KindRefreshToken Kind = "refresh_token"
	// KindConversation holds the chat conversation handle assigned by the backend.
	KindConversation Kind = "conversation"
)

var (
	// ErrSlotEmpty indicates the requested slot holds no value.
	ErrSlotEmpty = errors.New("credstore.slot_empty")
	// ErrUnknownKind indicates a slot kind outside the known set.
	ErrUnknownKind = errors.New("credstore.unknown_kind")
	// ErrEmptyValue indicates an attempt to store an empty credential.
	ErrEmptyValue = errors.New("credstore.empty_value")
)

// Store persists named credential slots. Implementations must tolerate reads
// before any session exists and must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, kind Kind) (string, error)
	Set(ctx context.Context, kind Kind, value string) error
	Clear(ctx context.Context, kind Kind) error
	ClearAll(ctx context.Context) error
}

func knownKind(kind Kind) bool {
	switch kind {
	case KindAccessToken, KindRefreshToken, KindConversation:
		return true
	default:
		return false
	}
}
