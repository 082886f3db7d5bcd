/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inkwell-blog/inkwell/config"
	"github.com/inkwell-blog/inkwell/internal/events"
	"github.com/inkwell-blog/inkwell/internal/logging"
	"github.com/inkwell-blog/inkwell/internal/mq"
	"github.com/inkwell-blog/inkwell/types"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes blog events from the configured broker",
	Long: `Subscribes to EVENTS_CHANNEL on the broker selected by EVENTS_BACKEND
and logs every blog event it receives. Usage:

	inkwell worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := events.NewBackend(ctx, cfg.Events)
		if err != nil {
			return fmt.Errorf("init events: %w", err)
		}
		if backend == nil {
			return errors.New("EVENTS_BACKEND is none; nothing to consume")
		}
		broker := mq.New(backend)
		defer func() {
			_ = broker.Close()
		}()

		logger.Info("worker consuming", "backend", cfg.Events.Backend, "channel", cfg.Events.Channel)
		err = events.Consume(ctx, broker, cfg.Events.Channel, func(ctx context.Context, event types.Event) error {
			logger.InfoContext(ctx, "event received",
				"id", event.ID,
				"type", event.Type,
				"user_id", event.UserID,
				"post_id", event.PostID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
