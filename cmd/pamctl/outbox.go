package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pamsync/internal/config"
	"pamsync/pkg/db"
	"pamsync/pkg/logger"
	"pamsync/pkg/outbox"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the transactional outbox",
	}
	cmd.AddCommand(outboxReplayCmd())
	return cmd
}

func outboxReplayCmd() *cobra.Command {
	var (
		limit   int
		eventID int64
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reset failed outbox events to pending so the dispatcher sends them again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.NewLogger(cfg.LogLevel)
			defer log.Sync()

			ctx := context.Background()
			pool, err := db.NewConnection(ctx, cfg.DB, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			replay := outbox.NewReplayService(outbox.NewRepository(pool), log)
			if eventID > 0 {
				if err := replay.ReplayEvent(ctx, eventID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %d reset to pending\n", eventID)
				return nil
			}

			n, err := replay.ReplayFailedEvents(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d failed events reset to pending\n", n)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of failed events to replay")
	cmd.Flags().Int64Var(&eventID, "id", 0, "replay a single event by id")
	return cmd
}
