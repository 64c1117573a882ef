package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sarwatafreen/todo-app-website/internal/proxy"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local proxy that keeps tokens server-side for the browser UI",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin browser clients")
	serveCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("enable_cors", serveCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", serveCmd.Flags().Lookup("cors_allowed_origins"))

	return serveCmd
}

func runServe(command *cobra.Command, arguments []string) error {
	commandContext := command.Context()
	if commandContext == nil {
		commandContext = context.Background()
	}

	stack, stackErr := buildClientStack(commandContext)
	if stackErr != nil {
		return stackErr
	}
	defer stack.close()

	listenAddr := viper.GetString("listen_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	proxyServer, proxyErr := proxy.New(stack.logger, stack.sessions, stack.executor, proxy.Config{
		EnableCORS:     enableCORS,
		AllowedOrigins: corsAllowedOrigins,
	})
	if proxyErr != nil {
		return proxyErr
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           proxyServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			stack.logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	stack.logger.Info("listening",
		zap.String("addr", listenAddr),
		zap.String("backend", stack.sessions.BaseURL()))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}
