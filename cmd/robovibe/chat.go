package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/robovibe-agent/internal/adapters/sse"
	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Run one request and stream the answer to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Keep stdout for the answer.
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl == "" {
			observability.SetLevel("error")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		app, err := buildApplication(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()
		app.monitor.Probe(ctx)

		convID, _ := cmd.Flags().GetString("conversation")
		raw, _ := cmd.Flags().GetBool("raw")

		id, events := app.svc.StreamChat(ctx, domain.ConversationID(convID), strings.Join(args, " "))
		out := cmd.OutOrStdout()
		if raw {
			return sse.Pump(ctx, out, events)
		}

		for ev := range events {
			switch ev.Kind {
			case domain.EventChunk:
				fmt.Fprint(out, ev.Text)
			case domain.EventError:
				fmt.Fprintln(out)
				return errors.New(ev.Text)
			case domain.EventDone:
				fmt.Fprintln(out)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("conversation", "c", "", "Conversation id to continue")
	chatCmd.Flags().Bool("raw", false, "Print the framed event stream instead of plain text")
}
