package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

func TestLoadClientConfigRequiresBaseURL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("http_timeout", time.Second)
	viper.Set("database_url", "sqlite://creds.db")

	_, err := loadClientConfig()
	if err == nil {
		t.Fatalf("expected error when base_url is missing")
	}
	expectedMessage := "config.missing_base_url: base_url must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadClientConfigRequiresPositiveHTTPTimeout(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("base_url", "http://localhost:8000")
	viper.Set("database_url", "sqlite://creds.db")
	viper.Set("http_timeout", 0)

	_, err := loadClientConfig()
	if err == nil {
		t.Fatalf("expected error when http_timeout is non-positive")
	}
	expectedMessage := "config.invalid_http_timeout: http_timeout must be greater than zero"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadClientConfigRequiresDatabaseURLUnlessEphemeral(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("base_url", "http://localhost:8000")
	viper.Set("http_timeout", time.Second)
	viper.Set("database_url", "")

	_, err := loadClientConfig()
	if err == nil {
		t.Fatalf("expected error when database_url is missing")
	}
	expectedMessage := "config.missing_database_url: database_url must be provided unless ephemeral is set"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}

	viper.Set("ephemeral", true)
	configuration, ephemeralErr := loadClientConfig()
	if ephemeralErr != nil {
		t.Fatalf("expected ephemeral config to load, got %v", ephemeralErr)
	}
	if !configuration.Ephemeral {
		t.Fatalf("expected ephemeral flag to be set")
	}
}

func TestRunServeEphemeral(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	viper.Set("base_url", "http://localhost:8000")
	viper.Set("http_timeout", time.Second)
	viper.Set("ephemeral", true)
	viper.Set("listen_addr", ":0")

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	serveCmd := newServeCommand()
	if err := runServe(serveCmd, nil); err != nil {
		t.Fatalf("expected serve to exit cleanly, got %v", err)
	}
}

func TestRootCommandHelp(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}
