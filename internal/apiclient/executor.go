// Package apiclient performs authenticated HTTP calls against the task
// backend. Every call flows through one Executor that attaches the bearer
// credential and, on an authorization failure, drives at most one
// refresh-and-retry cycle.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sarwatafreen/todo-app-website/internal/credstore"
	"github.com/sarwatafreen/todo-app-website/internal/session"
	"github.com/sarwatafreen/todo-app-website/internal/tokenclaims"
)

// Request describes one logical authenticated call.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Response carries the terminal 2xx result of a call.
type Response struct {
	Status int
	Body   []byte
}

// DecodeJSON unmarshals the response body into the target.
func (response *Response) DecodeJSON(target any) error {
	if len(response.Body) == 0 {
		return nil
	}
	if unmarshalErr := json.Unmarshal(response.Body, target); unmarshalErr != nil {
		return fmt.Errorf("apiclient.decode_body: %w", unmarshalErr)
	}
	return nil
}

type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeRetryableAuth
	outcomeTerminal
)

// Executor wraps outbound calls with the refresh-and-retry contract.
type Executor struct {
	sessions   *session.Manager
	httpClient *http.Client
	logger     *zap.Logger
}

// NewExecutor constructs an Executor over the session manager.
func NewExecutor(sessions *session.Manager, logger *zap.Logger) (*Executor, error) {
	if sessions == nil {
		return nil, errors.New("apiclient.new.nil_session_manager")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		sessions:   sessions,
		httpClient: newHTTPClient(sessions.HTTPTimeout()),
		logger:     logger,
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Subject resolves the subject identity from the stored access credential
// without an expiry check, so a call holding an expired credential can still
// reach the backend and trigger the refresh cycle.
func (executor *Executor) Subject(ctx context.Context) (string, error) {
	accessToken, getErr := executor.sessions.AccessToken(ctx)
	if getErr != nil {
		if errors.Is(getErr, credstore.ErrSlotEmpty) {
			return "", newError(KindUnauthenticated, 0, "authentication required; please log in first")
		}
		return "", newError(KindUnauthenticated, 0, getErr.Error())
	}
	claims, decodeErr := tokenclaims.Decode(accessToken)
	if decodeErr != nil {
		return "", newError(KindUnauthenticated, 0, "authentication required; please log in first")
	}
	return claims.Subject, nil
}

// Do performs one logical call: at most two attempts, with exactly one
// refresh between them when the first attempt is rejected as unauthorized.
func (executor *Executor) Do(ctx context.Context, request Request) (*Response, error) {
	if strings.TrimSpace(request.Method) == "" || strings.TrimSpace(request.Path) == "" {
		return nil, newError(KindInvalidRequest, 0, "method and path are required")
	}

	accessToken, getErr := executor.sessions.AccessToken(ctx)
	if getErr != nil {
		if errors.Is(getErr, credstore.ErrSlotEmpty) {
			return nil, newError(KindUnauthenticated, 0, "authentication required; please log in first")
		}
		return nil, newError(KindUnauthenticated, 0, getErr.Error())
	}

	outcome, response, classified := executor.attempt(ctx, request, accessToken)
	if outcome == outcomeSuccess {
		return response, nil
	}
	if outcome == outcomeTerminal {
		return nil, classified
	}

	// Authorization failure: one refresh, one retry, no third attempt.
	if _, refreshErr := executor.sessions.Refresh(ctx); refreshErr != nil {
		executor.logger.Warn("refresh after 401 failed",
			zap.String("code", "apiclient.retry.refresh_failed"),
			zap.String("path", request.Path),
			zap.Error(refreshErr))
		return nil, newError(KindAuthenticationFailed, 0, "authentication failed; please log in again")
	}

	// Re-read the store so the retry observes the credential written by the
	// refresh that triggered it, including one coalesced from another caller.
	freshToken, rereadErr := executor.sessions.AccessToken(ctx)
	if rereadErr != nil {
		return nil, newError(KindAuthenticationFailed, 0, "authentication failed; please log in again")
	}

	outcome, response, classified = executor.attempt(ctx, request, freshToken)
	switch outcome {
	case outcomeSuccess:
		return response, nil
	case outcomeRetryableAuth:
		return nil, newError(KindUnauthenticated, http.StatusUnauthorized, "unauthorized")
	default:
		return nil, classified
	}
}

// attempt issues one bounded HTTP attempt and classifies its result.
func (executor *Executor) attempt(ctx context.Context, request Request, accessToken string) (attemptOutcome, *Response, *Error) {
	var bodyReader io.Reader
	if request.Body != nil {
		encoded, marshalErr := json.Marshal(request.Body)
		if marshalErr != nil {
			return outcomeTerminal, nil, newError(KindInvalidRequest, 0, marshalErr.Error())
		}
		bodyReader = bytes.NewReader(encoded)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, executor.sessions.HTTPTimeout())
	defer cancel()

	httpRequest, requestErr := http.NewRequestWithContext(attemptCtx, request.Method, executor.sessions.BaseURL()+request.Path, bodyReader)
	if requestErr != nil {
		return outcomeTerminal, nil, newError(KindInvalidRequest, 0, requestErr.Error())
	}
	httpRequest.Header.Set("Authorization", "Bearer "+accessToken)
	if request.Body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, doErr := executor.httpClient.Do(httpRequest)
	if doErr != nil {
		return outcomeTerminal, nil, newError(KindNetwork, 0, "network error - could not reach server")
	}
	defer func() { _ = httpResponse.Body.Close() }()

	responseBody, readErr := io.ReadAll(httpResponse.Body)
	if readErr != nil {
		return outcomeTerminal, nil, newError(KindNetwork, 0, "network error - could not reach server")
	}

	status := httpResponse.StatusCode
	switch {
	case status == http.StatusUnauthorized:
		return outcomeRetryableAuth, nil, nil
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return outcomeSuccess, &Response{Status: status, Body: responseBody}, nil
	case status == http.StatusUnprocessableEntity:
		return outcomeTerminal, nil, newError(KindValidation, status, flattenValidationDetail(responseBody))
	default:
		return outcomeTerminal, nil, newError(KindServer, status, serverMessage(status, responseBody))
	}
}

// Profile fetches the authenticated user's profile through the standard
// refresh-and-retry contract.
func (executor *Executor) Profile(ctx context.Context) (*session.User, error) {
	response, doErr := executor.Do(ctx, Request{Method: http.MethodGet, Path: "/auth/me"})
	if doErr != nil {
		return nil, doErr
	}
	var user session.User
	if decodeErr := response.DecodeJSON(&user); decodeErr != nil {
		return nil, newError(KindServer, response.Status, "malformed profile payload")
	}
	return &user, nil
}
