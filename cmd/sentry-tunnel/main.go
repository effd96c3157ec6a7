// Package main is the entry point for the sentry-tunnel binary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tunnel "github.com/cloudogu/sentry-tunnel"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "sentry-tunnel.yml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentry-tunnel",
		Short: "Relay sentry envelopes from browsers to allow-listed sentry instances",
		Long: `A same-origin tunnel for sentry envelopes.

The tunnel reads the dsn from each envelope and forwards the envelope to that
sentry instance if its host and project id are allowed by the configuration.

Example:
  sentry-tunnel --config /etc/sentry-tunnel.yml`,
		SilenceUsage: true,
		RunE:         runTunnel,
	}

	rootCmd.Flags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level, overrides the configuration (DEBUG, INFO, WARN, ERROR)")

	return rootCmd
}

func loadConfiguration(cmd *cobra.Command) (tunnel.Configuration, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return tunnel.Configuration{}, errors.Wrap(err, "failed to get config flag")
	}

	configuration, err := tunnel.ReadConfiguration(configPath)
	if err != nil {
		return configuration, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return configuration, errors.Wrap(err, "failed to get log-level flag")
	}
	if logLevel != "" {
		configuration.LogLevel = logLevel
	}

	return configuration, nil
}

func runTunnel(cmd *cobra.Command, _ []string) error {
	configuration, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}

	logCloser, err := tunnel.PrepareLogger(configuration)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := tunnel.NewServer(ctx, configuration)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	return nil
}
