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

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/robovibe-agent/internal/adapters/http"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Serves the chat, streaming, settings and backup API used by the web UI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApplication(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		go app.monitor.Run(ctx)

		log := observability.Logger()
		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           httpadapter.NewServer(app.svc),
			ReadHeaderTimeout: 10 * time.Second,
			// Streams have no write deadline; they end with the turn.
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("robovibe API listening", "addr", srv.Addr, "mode", cfg.Mode)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			log.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown did not complete", "grace", shutdownGrace, "error", err)
			return srv.Close()
		}
		log.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (overrides ROBOVIBE_PORT)")
}
