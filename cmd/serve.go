package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/imageeditor/internal/auth"
	"github.com/lehigh-university-libraries/imageeditor/internal/cloudinary"
	"github.com/lehigh-university-libraries/imageeditor/internal/config"
	"github.com/lehigh-university-libraries/imageeditor/internal/credentials"
	"github.com/lehigh-university-libraries/imageeditor/internal/handlers"
	"github.com/lehigh-university-libraries/imageeditor/internal/history"
	"github.com/lehigh-university-libraries/imageeditor/internal/session"
	"github.com/lehigh-university-libraries/imageeditor/internal/staging"
	"github.com/lehigh-university-libraries/imageeditor/internal/suggest"
	"github.com/lehigh-university-libraries/imageeditor/internal/transform"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the image editor",
		Long: `Starts the image editor web interface on the specified port.

Cloudinary credentials are read from CLOUDINARY_CLOUD_NAME,
CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET (or a .env file) unless
given as flags. Users are read from the YAML credential file.`,
		Example: `  # Start server on default port 8888
  imageeditor serve

  # Start server on custom port with object suggestions from Gemini
  imageeditor serve --port 3000 --suggest-provider gemini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cfg = config.Bind(cmd.Flags())

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	creds, err := credentials.Load(cfg.CredentialsFile, credentials.WithPreauthorization(cfg.RequirePreauthorization))
	if err != nil {
		return err
	}

	images, err := cloudinary.New(cfg.Cloudinary)
	if err != nil {
		return fmt.Errorf("failed to configure cloudinary: %w", err)
	}

	stager, err := staging.New(cfg.StagingDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := stager.ClearAll(); err != nil {
			slog.Error("Failed to clear staged uploads", "err", err)
		}
	}()

	recorder, err := history.NewRecorder(cfg.HistoryFile)
	if err != nil {
		return err
	}

	suggester, err := suggest.NewService(cfg.Suggest)
	if err != nil {
		return err
	}

	sessions := session.NewStore()
	controller := session.NewController(stager, transform.NewService(images), recorder)
	handler := handlers.New(handlers.Options{
		Sessions:       sessions,
		Controller:     controller,
		Gate:           auth.NewGate(creds, controller, cfg.SecureCookies),
		Suggester:      suggester,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SecureCookies:  cfg.SecureCookies,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	expiry := session.Expiry{TTL: cfg.SessionTTL, AnonymousTTL: cfg.AnonymousSessionTTL}
	go controller.RunSweeper(sweepCtx, sessions, expiry, cfg.SweepInterval)

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Image editor available", "addr", addr, "url", "http://localhost"+addr, "staging_dir", stager.Dir(), "suggestions", suggester.Enabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation (Ctrl+C) or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
		// Give in-flight transforms time to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Cloudinary.Timeout+5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}
