// Package main is the entry point for the upload server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/fileuploader/internal/config"
	"github.com/example/fileuploader/internal/logger"
)

var version = "1.0.0"

type options struct {
	configFile string
	testConfig bool
	verbose    bool
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "uploader",
		Short:         "Validate and persist uploaded files according to per-field policies",
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "uploader.yaml", "Configuration file path")
	root.PersistentFlags().BoolVar(&opts.testConfig, "test-config", false, "Test configuration and exit")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP upload server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "policies",
		Short: "Print the upload policies the configuration declares",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return printPolicies(cmd, cfg)
		},
	})
	return root
}

func loadConfig(opts *options) (*config.Settings, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.verbose {
		logger.Verbose(cfg)
	}
	return cfg, nil
}

func printPolicies(cmd *cobra.Command, cfg *config.Settings) error {
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, field := range reg.Fields() {
		p, _ := reg.Get(field)
		marker := ""
		if i == 0 {
			marker = " (default)"
		}
		fmt.Fprintf(out, "%s%s: kind=%s types=%s max_size=%d dir=%s skip_on_error=%t\n",
			field, marker, p.Kind, p.AllowedTypes, p.MaxSize, p.Directory, p.SkipOnError)
	}
	return nil
}

func runServe(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	srv, err := newServer(cfg, log)
	if err != nil {
		return err
	}
	if opts.testConfig {
		srv.Close()
		fmt.Println("Configuration test successful")
		return nil
	}

	log.Info("upload server starting",
		zap.String("version", version),
		zap.String("addr", cfg.Address()),
		zap.Int("workers", cfg.Workers.Count),
		zap.Strings("policies", srv.registry.Fields()),
		zap.String("mirror", cfg.Mirror.Provider))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    cfg.Address(),
		Handler: srv.Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	log.Info("server shutdown complete")
	return nil
}
