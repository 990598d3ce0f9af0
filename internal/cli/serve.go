package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaveeDilshan/PapilioNet/internal/app"
	"github.com/KaveeDilshan/PapilioNet/internal/handlers"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the classification HTTP service",
		Long: `Starts the PapilioNet HTTP API.

If the model or species catalog cannot be loaded the server still starts,
reports "degraded" on /health and answers 503 on /predict.`,
		Example: `  # Start with papilio.yaml in the working directory
  papilionet serve

  # Override the listen address
  papilionet serve --addr :5000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := app.New(cfg, app.ONNXFactory)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					slog.Error("Failed to release resources", "err", err)
				}
			}()

			if err := a.StartupError(); err != nil {
				slog.Warn("Starting in degraded mode", "err", err)
			}

			h := handlers.NewHandler(a.Pipeline, a.Feedback, handlers.Options{
				MaxUploadBytes:   cfg.Uploads.MaxBytes,
				DefaultTopN:      cfg.Classifier.DefaultTopN,
				RejectionMessage: cfg.Classifier.RejectionMessage,
				CatalogSize:      a.Catalog.Size(),
			})

			server := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      h.Routes(a.Uploads.Handler(), app.UploadsRoute, cfg.Server.CORSOrigin, cfg.Server.RequestTimeout),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("PapilioNet listening",
					"addr", cfg.Server.Addr,
					"model", cfg.Model.Path,
					"classes", a.Catalog.Size(),
					"threshold", cfg.Classifier.ConfidenceThreshold)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides server.addr)")

	return cmd
}
