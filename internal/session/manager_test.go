package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sarwatafreen/todo-app-website/internal/credstore"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func mintUnsignedToken(t *testing.T, subject string, email string, expiresAt time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, marshalErr := json.Marshal(map[string]any{
		"sub":   subject,
		"email": email,
		"exp":   expiresAt.Unix(),
	})
	if marshalErr != nil {
		t.Fatalf("failed to marshal claims: %v", marshalErr)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func newTestManager(t *testing.T, baseURL string, clock fixedClock) (*Manager, credstore.Store) {
	t.Helper()
	store := credstore.NewMemoryStore()
	manager, newErr := New(Config{
		BaseURL: baseURL,
		Clock:   clock,
	}, store, zaptest.NewLogger(t))
	if newErr != nil {
		t.Fatalf("failed to construct manager: %v", newErr)
	}
	return manager, store
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemoryStore()
	if _, err := New(Config{BaseURL: ""}, store, nil); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := New(Config{BaseURL: "not a url"}, store, nil); !errors.Is(err, ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL, got %v", err)
	}
	if _, err := New(Config{BaseURL: "ftp://host"}, store, nil); !errors.Is(err, ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL for non-http scheme, got %v", err)
	}
}

func TestLoginStoresBothCredentials(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	accessToken := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/auth/login" || request.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(request.Body).Decode(&body)
		if body["email"] != "a@x.com" || body["password"] != "p" {
			t.Errorf("unexpected login body: %#v", body)
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]any{"id": "user-1", "email": "a@x.com"},
		})
	}))
	defer server.Close()

	manager, store := newTestManager(t, server.URL, fixedClock{current: now})

	result, loginErr := manager.Login(context.Background(), "a@x.com", "p")
	if loginErr != nil {
		t.Fatalf("unexpected login error: %v", loginErr)
	}
	if result.User.ID != "user-1" {
		t.Fatalf("unexpected user id: %s", result.User.ID)
	}

	storedAccess, _ := store.Get(context.Background(), credstore.KindAccessToken)
	storedRefresh, _ := store.Get(context.Background(), credstore.KindRefreshToken)
	if storedAccess != accessToken || storedRefresh != "refresh-1" {
		t.Fatalf("credentials not stored: access %q refresh %q", storedAccess, storedRefresh)
	}

	state := manager.CurrentSession(context.Background())
	if !state.LoggedIn || state.Subject != "user-1" || state.Email != "a@x.com" {
		t.Fatalf("expected logged-in state for user-1, got %#v", state)
	}
}

func TestLoginFailureLeavesStoredCredentialsUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(writer).Encode(map[string]string{"detail": "bad credentials"})
	}))
	defer server.Close()

	now := time.Unix(1700000000, 0).UTC()
	manager, store := newTestManager(t, server.URL, fixedClock{current: now})

	if err := store.Set(context.Background(), credstore.KindAccessToken, "existing-access"); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	_, loginErr := manager.Login(context.Background(), "a@x.com", "wrong")
	var backendErr *BackendError
	if !errors.As(loginErr, &backendErr) || backendErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 BackendError, got %v", loginErr)
	}
	if backendErr.Message != "bad credentials" {
		t.Fatalf("expected backend detail message, got %q", backendErr.Message)
	}

	stored, _ := store.Get(context.Background(), credstore.KindAccessToken)
	if stored != "existing-access" {
		t.Fatalf("login failure must not mutate stored credentials, got %q", stored)
	}
}

func TestCurrentSessionTreatsExpiredTokenAsLoggedOut(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager, store := newTestManager(t, "http://backend.invalid", fixedClock{current: now})

	expired := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(-time.Minute))
	if err := store.Set(context.Background(), credstore.KindAccessToken, expired); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	if state := manager.CurrentSession(context.Background()); state.LoggedIn {
		t.Fatalf("expired token must report logged out, got %#v", state)
	}

	// Lazy invalidation: the expired credential stays in storage.
	stored, getErr := store.Get(context.Background(), credstore.KindAccessToken)
	if getErr != nil || stored != expired {
		t.Fatalf("expired token must remain stored, got %q err %v", stored, getErr)
	}
}

func TestCurrentSessionTreatsMalformedTokenAsLoggedOut(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager, store := newTestManager(t, "http://backend.invalid", fixedClock{current: now})

	if err := store.Set(context.Background(), credstore.KindAccessToken, "not-a-token"); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if manager.IsAuthenticated(context.Background()) {
		t.Fatalf("malformed token must report logged out")
	}
}

func TestRefreshStoresNewAccessAndKeepsRefreshWhenNotRotated(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	newAccess := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(request.Body).Decode(&body)
		if body["refresh_token"] != "refresh-1" {
			t.Errorf("unexpected refresh body: %#v", body)
		}
		_ = json.NewEncoder(writer).Encode(map[string]string{"access_token": newAccess})
	}))
	defer server.Close()

	manager, store := newTestManager(t, server.URL, fixedClock{current: now})
	if err := store.Set(context.Background(), credstore.KindRefreshToken, "refresh-1"); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	accessToken, refreshErr := manager.Refresh(context.Background())
	if refreshErr != nil {
		t.Fatalf("unexpected refresh error: %v", refreshErr)
	}
	if accessToken != newAccess {
		t.Fatalf("expected new access token returned")
	}
	storedRefresh, _ := store.Get(context.Background(), credstore.KindRefreshToken)
	if storedRefresh != "refresh-1" {
		t.Fatalf("refresh token must be kept when the response omits rotation, got %q", storedRefresh)
	}
}

func TestRefreshReplacesRotatedRefreshToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	newAccess := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewEncoder(writer).Encode(map[string]string{
			"access_token":  newAccess,
			"refresh_token": "refresh-2",
		})
	}))
	defer server.Close()

	manager, store := newTestManager(t, server.URL, fixedClock{current: now})
	if err := store.Set(context.Background(), credstore.KindRefreshToken, "refresh-1"); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	if _, refreshErr := manager.Refresh(context.Background()); refreshErr != nil {
		t.Fatalf("unexpected refresh error: %v", refreshErr)
	}
	storedRefresh, _ := store.Get(context.Background(), credstore.KindRefreshToken)
	if storedRefresh != "refresh-2" {
		t.Fatalf("rotated refresh token must replace the stored one, got %q", storedRefresh)
	}
}

func TestRefreshFailureTearsDownSession(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	manager, store := newTestManager(t, server.URL, fixedClock{current: now})
	liveAccess := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(time.Hour))
	_ = store.Set(context.Background(), credstore.KindAccessToken, liveAccess)
	_ = store.Set(context.Background(), credstore.KindRefreshToken, "refresh-1")

	_, refreshErr := manager.Refresh(context.Background())
	var backendErr *BackendError
	if !errors.As(refreshErr, &backendErr) {
		t.Fatalf("expected BackendError, got %v", refreshErr)
	}
	if manager.IsAuthenticated(context.Background()) {
		t.Fatalf("session must be logged out after a failed refresh")
	}
	if _, err := store.Get(context.Background(), credstore.KindAccessToken); !errors.Is(err, credstore.ErrSlotEmpty) {
		t.Fatalf("access slot must be cleared, got %v", err)
	}
	if _, err := store.Get(context.Background(), credstore.KindRefreshToken); !errors.Is(err, credstore.ErrSlotEmpty) {
		t.Fatalf("refresh slot must be cleared, got %v", err)
	}
}

func TestRefreshWithoutRefreshTokenFails(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager, _ := newTestManager(t, "http://backend.invalid", fixedClock{current: now})

	_, refreshErr := manager.Refresh(context.Background())
	if !errors.Is(refreshErr, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", refreshErr)
	}
}

func TestRefreshMalformedResponseTearsDownSession(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewEncoder(writer).Encode(map[string]string{"access_token": ""})
	}))
	defer server.Close()

	manager, store := newTestManager(t, server.URL, fixedClock{current: now})
	_ = store.Set(context.Background(), credstore.KindRefreshToken, "refresh-1")

	_, refreshErr := manager.Refresh(context.Background())
	if !errors.Is(refreshErr, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", refreshErr)
	}
	if manager.IsAuthenticated(context.Background()) {
		t.Fatalf("session must be torn down after a malformed refresh response")
	}
}

func TestConcurrentRefreshesAreCoalesced(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	newAccess := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(time.Hour))

	var refreshCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(writer).Encode(map[string]string{"access_token": newAccess})
	}))
	defer server.Close()

	manager, store := newTestManager(t, server.URL, fixedClock{current: now})
	_ = store.Set(context.Background(), credstore.KindRefreshToken, "refresh-1")

	const callers = 8
	var waitGroup sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for index := 0; index < callers; index++ {
		waitGroup.Add(1)
		go func(slot int) {
			defer waitGroup.Done()
			results[slot], errs[slot] = manager.Refresh(context.Background())
		}(index)
	}
	waitGroup.Wait()

	for index := 0; index < callers; index++ {
		if errs[index] != nil {
			t.Fatalf("caller %d: unexpected error %v", index, errs[index])
		}
		if results[index] != newAccess {
			t.Fatalf("caller %d: expected the shared access token", index)
		}
	}
	if calls := refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly one backend refresh call, got %d", calls)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager, store := newTestManager(t, "http://backend.invalid", fixedClock{current: now})

	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("logout while logged out must not error: %v", err)
	}

	_ = store.Set(context.Background(), credstore.KindAccessToken, "token")
	_ = store.Set(context.Background(), credstore.KindRefreshToken, "refresh")
	_ = store.Set(context.Background(), credstore.KindConversation, "conv-1")

	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("unexpected logout error: %v", err)
	}
	if manager.Conversation(context.Background()) != "" {
		t.Fatalf("logout must clear the conversation handle")
	}
	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("repeated logout must not error: %v", err)
	}
}

func TestConversationHandleLifecycle(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager, _ := newTestManager(t, "http://backend.invalid", fixedClock{current: now})

	if err := manager.RememberConversation(context.Background(), "  "); err != nil {
		t.Fatalf("blank conversation handle must be ignored: %v", err)
	}
	if handle := manager.Conversation(context.Background()); handle != "" {
		t.Fatalf("expected no handle, got %q", handle)
	}

	if err := manager.RememberConversation(context.Background(), "conv-7"); err != nil {
		t.Fatalf("unexpected remember error: %v", err)
	}
	if handle := manager.Conversation(context.Background()); handle != "conv-7" {
		t.Fatalf("expected conv-7, got %q", handle)
	}

	if err := manager.ForgetConversation(context.Background()); err != nil {
		t.Fatalf("unexpected forget error: %v", err)
	}
	if handle := manager.Conversation(context.Background()); handle != "" {
		t.Fatalf("expected handle cleared, got %q", handle)
	}
}

func TestNetworkFailureSurfacesAsUnreachable(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	// Closed server: connection refused on every attempt.
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {}))
	baseURL := server.URL
	server.Close()

	manager, _ := newTestManager(t, baseURL, fixedClock{current: now})
	_, loginErr := manager.Login(context.Background(), "a@x.com", "p")
	if !errors.Is(loginErr, ErrBackendUnreachable) {
		t.Fatalf("expected ErrBackendUnreachable, got %v", loginErr)
	}
}
