package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sarwatafreen/todo-app-website/internal/apiclient"
	"github.com/sarwatafreen/todo-app-website/internal/credstore"
	"github.com/sarwatafreen/todo-app-website/internal/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "todo",
		Short:         "Task-list client with JWT sessions, transparent token refresh, and a local proxy for the browser UI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("base_url", "http://localhost:8000", "Backend API base URL")
	rootCmd.PersistentFlags().String("database_url", "sqlite://todo-credentials.db", "Credential store URL (sqlite:// or postgres://)")
	rootCmd.PersistentFlags().Duration("http_timeout", session.DefaultHTTPTimeout, "Per-attempt network timeout")
	rootCmd.PersistentFlags().Bool("ephemeral", false, "Keep credentials in memory only (lost on exit)")

	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base_url"))
	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database_url"))
	_ = viper.BindPFlag("http_timeout", rootCmd.PersistentFlags().Lookup("http_timeout"))
	_ = viper.BindPFlag("ephemeral", rootCmd.PersistentFlags().Lookup("ephemeral"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newServeCommand(),
		newRegisterCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoAmICommand(),
		newTaskCommand(),
		newChatCommand(),
	)
	return rootCmd
}

const (
	configCodeMissingBaseURL     = "config.missing_base_url"
	configCodeMissingDatabaseURL = "config.missing_database_url"
	configCodeInvalidHTTPTimeout = "config.invalid_http_timeout"
)

type clientConfig struct {
	BaseURL     string
	DatabaseURL string
	HTTPTimeout time.Duration
	Ephemeral   bool
}

func configError(code string, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func loadClientConfig() (clientConfig, error) {
	baseURL := viper.GetString("base_url")
	if baseURL == "" {
		return clientConfig{}, configError(configCodeMissingBaseURL, "base_url must be provided")
	}
	httpTimeout := viper.GetDuration("http_timeout")
	if httpTimeout <= 0 {
		return clientConfig{}, configError(configCodeInvalidHTTPTimeout, "http_timeout must be greater than zero")
	}
	ephemeral := viper.GetBool("ephemeral")
	databaseURL := viper.GetString("database_url")
	if !ephemeral && databaseURL == "" {
		return clientConfig{}, configError(configCodeMissingDatabaseURL, "database_url must be provided unless ephemeral is set")
	}
	return clientConfig{
		BaseURL:     baseURL,
		DatabaseURL: databaseURL,
		HTTPTimeout: httpTimeout,
		Ephemeral:   ephemeral,
	}, nil
}

// clientStack bundles the wired client components for one command run.
type clientStack struct {
	logger   *zap.Logger
	sessions *session.Manager
	executor *apiclient.Executor
}

func buildClientStack(ctx context.Context) (*clientStack, error) {
	configuration, configErr := loadClientConfig()
	if configErr != nil {
		return nil, configErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return nil, loggerErr
	}

	var store credstore.Store
	if configuration.Ephemeral {
		store = credstore.NewMemoryStore()
		logger.Info("using in-memory credential store")
	} else {
		databaseStore, storeErr := credstore.NewDatabaseStore(ctx, configuration.DatabaseURL)
		if storeErr != nil {
			return nil, storeErr
		}
		store = databaseStore
		logger.Info("using persistent credential store", zap.String("driver", databaseStore.Driver()))
	}

	sessions, sessionErr := session.New(session.Config{
		BaseURL:     configuration.BaseURL,
		HTTPTimeout: configuration.HTTPTimeout,
	}, store, logger)
	if sessionErr != nil {
		return nil, sessionErr
	}
	executor, executorErr := apiclient.NewExecutor(sessions, logger)
	if executorErr != nil {
		return nil, executorErr
	}
	return &clientStack{
		logger:   logger,
		sessions: sessions,
		executor: executor,
	}, nil
}

func (stack *clientStack) close() {
	_ = stack.logger.Sync()
}
