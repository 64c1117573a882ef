// Package session orchestrates the credential lifecycle for the task-list
// client: login, registration, logout, refresh, and "am I authenticated"
// queries. It owns the credential store and the claims decoder; the
// authenticated request executor in internal/apiclient sits on top of it.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sarwatafreen/todo-app-website/internal/credstore"
	"github.com/sarwatafreen/todo-app-website/internal/tokenclaims"
)

// User mirrors the backend user object.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LoginResult is the payload returned by the backend login endpoint.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
}

// SessionState is derived from the credential store and claims decoder; it is
// never persisted. The zero value is logged out.
type SessionState struct {
	LoggedIn bool
	Subject  string
	Email    string
}

// Manager drives the session lifecycle against the backend auth endpoints.
type Manager struct {
	config       Config
	store        credstore.Store
	logger       *zap.Logger
	refreshGroup singleflight.Group
}

// New validates the configuration and constructs a Manager.
func New(configuration Config, store credstore.Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session.new.nil_store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validated, validateErr := configuration.validate()
	if validateErr != nil {
		return nil, validateErr
	}
	return &Manager{
		config: validated,
		store:  store,
		logger: logger,
	}, nil
}

// BaseURL returns the resolved backend base URL.
func (manager *Manager) BaseURL() string {
	return manager.config.BaseURL
}

// HTTPTimeout returns the per-attempt network ceiling.
func (manager *Manager) HTTPTimeout() time.Duration {
	return manager.config.HTTPTimeout
}

// Register creates a new account. It does not establish a session.
func (manager *Manager) Register(ctx context.Context, email string, password string) (*User, error) {
	requestBody := map[string]string{
		"email":            email,
		"password":         password,
		"confirm_password": password,
	}
	var user User
	if err := manager.postJSON(ctx, "/auth/signup", requestBody, &user); err != nil {
		return nil, fmt.Errorf("session.register: %w", err)
	}
	return &user, nil
}

// Login authenticates against the backend and stores both returned
// credentials. Stored credentials are never mutated on failure.
func (manager *Manager) Login(ctx context.Context, email string, password string) (*LoginResult, error) {
	requestBody := map[string]string{
		"email":    email,
		"password": password,
	}
	var result LoginResult
	if err := manager.postJSON(ctx, "/auth/login", requestBody, &result); err != nil {
		return nil, fmt.Errorf("session.login: %w", err)
	}
	if strings.TrimSpace(result.AccessToken) == "" || strings.TrimSpace(result.RefreshToken) == "" {
		return nil, fmt.Errorf("session.login: %w", ErrMalformedResponse)
	}
	if setErr := manager.store.Set(ctx, credstore.KindAccessToken, result.AccessToken); setErr != nil {
		return nil, fmt.Errorf("session.login: %w", setErr)
	}
	if setErr := manager.store.Set(ctx, credstore.KindRefreshToken, result.RefreshToken); setErr != nil {
		return nil, fmt.Errorf("session.login: %w", setErr)
	}
	manager.logger.Info("session established",
		zap.String("code", "session.login.ok"),
		zap.String("user_id", result.User.ID))
	return &result, nil
}

// Refresh exchanges the stored refresh credential for a new access credential.
// Concurrent callers are coalesced into a single in-flight refresh; every
// caller observes the credentials written by that one refresh. Any failure
// tears the whole session down before the error is returned.
func (manager *Manager) Refresh(ctx context.Context) (string, error) {
	result, err, _ := manager.refreshGroup.Do("refresh", func() (interface{}, error) {
		return manager.refreshOnce(ctx)
	})
	if err != nil {
		return "", err
	}
	accessToken, ok := result.(string)
	if !ok || accessToken == "" {
		return "", fmt.Errorf("session.refresh: %w", ErrMalformedResponse)
	}
	return accessToken, nil
}

func (manager *Manager) refreshOnce(ctx context.Context) (string, error) {
	refreshToken, getErr := manager.store.Get(ctx, credstore.KindRefreshToken)
	if getErr != nil {
		manager.teardown(ctx, "session.refresh.missing_token")
		if errors.Is(getErr, credstore.ErrSlotEmpty) {
			return "", fmt.Errorf("session.refresh: %w", ErrNoRefreshToken)
		}
		return "", fmt.Errorf("session.refresh: %w", getErr)
	}

	requestBody := map[string]string{"refresh_token": refreshToken}
	var response struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := manager.postJSON(ctx, "/auth/refresh", requestBody, &response); err != nil {
		manager.teardown(ctx, "session.refresh.backend_rejected")
		return "", fmt.Errorf("session.refresh: %w", err)
	}
	if strings.TrimSpace(response.AccessToken) == "" {
		manager.teardown(ctx, "session.refresh.malformed_response")
		return "", fmt.Errorf("session.refresh: %w", ErrMalformedResponse)
	}

	if setErr := manager.store.Set(ctx, credstore.KindAccessToken, response.AccessToken); setErr != nil {
		manager.teardown(ctx, "session.refresh.store_write")
		return "", fmt.Errorf("session.refresh: %w", setErr)
	}
	// The backend may rotate the refresh token; it replaces the stored one
	// only when present and non-empty, never inferred otherwise.
	if strings.TrimSpace(response.RefreshToken) != "" {
		if setErr := manager.store.Set(ctx, credstore.KindRefreshToken, response.RefreshToken); setErr != nil {
			manager.teardown(ctx, "session.refresh.store_write")
			return "", fmt.Errorf("session.refresh: %w", setErr)
		}
	}
	return response.AccessToken, nil
}

// Logout clears every stored slot, including the chat conversation handle.
// It is idempotent: logging out while logged out succeeds.
func (manager *Manager) Logout(ctx context.Context) error {
	if err := manager.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("session.logout: %w", err)
	}
	return nil
}

// AccessToken returns the stored access credential without an expiry check.
// The executor uses this raw read; expiry is resolved by the backend's 401.
func (manager *Manager) AccessToken(ctx context.Context) (string, error) {
	return manager.store.Get(ctx, credstore.KindAccessToken)
}

// CurrentSession derives the session state. An access credential past its
// expiry is treated as absent even though it remains stored until the next
// refresh or logout; reads never mutate the store.
func (manager *Manager) CurrentSession(ctx context.Context) SessionState {
	accessToken, getErr := manager.store.Get(ctx, credstore.KindAccessToken)
	if getErr != nil {
		return SessionState{}
	}
	claims, decodeErr := tokenclaims.Decode(accessToken)
	if decodeErr != nil {
		return SessionState{}
	}
	if claims.ExpiredAt(manager.config.Clock.Now()) {
		return SessionState{}
	}
	return SessionState{
		LoggedIn: true,
		Subject:  claims.Subject,
		Email:    claims.Email,
	}
}

// IsAuthenticated reports whether a live session exists.
func (manager *Manager) IsAuthenticated(ctx context.Context) bool {
	return manager.CurrentSession(ctx).LoggedIn
}

// Conversation returns the persisted chat conversation handle, if any.
func (manager *Manager) Conversation(ctx context.Context) string {
	value, getErr := manager.store.Get(ctx, credstore.KindConversation)
	if getErr != nil {
		return ""
	}
	return value
}

// RememberConversation persists the chat conversation handle for the subject.
func (manager *Manager) RememberConversation(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return nil
	}
	if setErr := manager.store.Set(ctx, credstore.KindConversation, conversationID); setErr != nil {
		return fmt.Errorf("session.remember_conversation: %w", setErr)
	}
	return nil
}

// ForgetConversation discards the persisted chat conversation handle.
func (manager *Manager) ForgetConversation(ctx context.Context) error {
	if clearErr := manager.store.Clear(ctx, credstore.KindConversation); clearErr != nil {
		return fmt.Errorf("session.forget_conversation: %w", clearErr)
	}
	return nil
}

func (manager *Manager) teardown(ctx context.Context, code string) {
	if clearErr := manager.store.ClearAll(ctx); clearErr != nil {
		manager.logger.Error("session teardown failed",
			zap.String("code", code),
			zap.Error(clearErr))
		return
	}
	manager.logger.Warn("session torn down",
		zap.String("code", code))
}

// postJSON issues one bounded POST to an auth endpoint and decodes a 2xx body
// into the target. Non-2xx responses become *BackendError; transport failures
// become ErrBackendUnreachable.
func (manager *Manager) postJSON(ctx context.Context, path string, requestBody any, target any) error {
	encoded, marshalErr := json.Marshal(requestBody)
	if marshalErr != nil {
		return fmt.Errorf("session.encode: %w", marshalErr)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, manager.config.HTTPTimeout)
	defer cancel()

	request, requestErr := http.NewRequestWithContext(attemptCtx, http.MethodPost, manager.config.BaseURL+path, bytes.NewReader(encoded))
	if requestErr != nil {
		return fmt.Errorf("session.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, doErr := manager.config.HTTPClient.Do(request)
	if doErr != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return newBackendError(response)
	}
	if target == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(target); decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	return nil
}
