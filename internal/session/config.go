package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sarwatafreen/todo-app-website/internal/tokenclaims"
)

// DefaultHTTPTimeout bounds every network attempt made by the client.
const DefaultHTTPTimeout = 30 * time.Second

var (
	// ErrMissingBaseURL indicates no backend base URL was configured.
	ErrMissingBaseURL = errors.New("session.config.missing_base_url")
	// ErrInvalidBaseURL indicates the configured base URL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("session.config.invalid_base_url")
)

// Config configures the session manager. The base URL is resolved exactly once
// at startup; there is no fallback-host guessing at request time.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	Clock       tokenclaims.Clock
	HTTPClient  *http.Client
}

func (configuration Config) validate() (Config, error) {
	trimmed := strings.TrimSpace(configuration.BaseURL)
	if trimmed == "" {
		return Config{}, fmt.Errorf("session.config: %w", ErrMissingBaseURL)
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Config{}, fmt.Errorf("session.config: %w: %s", ErrInvalidBaseURL, trimmed)
	}
	configuration.BaseURL = strings.TrimRight(trimmed, "/")
	if configuration.HTTPTimeout <= 0 {
		configuration.HTTPTimeout = DefaultHTTPTimeout
	}
	if configuration.Clock == nil {
		configuration.Clock = tokenclaims.SystemClock()
	}
	if configuration.HTTPClient == nil {
		configuration.HTTPClient = &http.Client{Timeout: configuration.HTTPTimeout}
	}
	return configuration, nil
}
