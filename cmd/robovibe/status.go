package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the Studio server and model configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		app, err := buildApplication(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		studioState := "disconnected"
		if app.svc.Status(ctx) {
			studioState = "connected"
		}
		fmt.Fprintf(out, "studio:  %s (%s, %s)\n", studioState, app.client.BaseURL(), cfg.MCPTransport)
		fmt.Fprintf(out, "model:   configured=%t\n", app.model.Configured())
		fmt.Fprintf(out, "storage: %s\n", cfg.StorageBackend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
