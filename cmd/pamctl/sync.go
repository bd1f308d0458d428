package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	mqcontracts "pamsync/contracts/mq"
	"pamsync/internal/config"
	"pamsync/pkg/mq"
	"pamsync/pkg/trace"
)

func syncCmd() *cobra.Command {
	var (
		orgID string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Request a sync of one organization's sheet",
		Long: `Publish pam.sync.requested for the given organization. The running
server picks it up and announces the result on pam.sync.completed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(orgID); err != nil {
				return fmt.Errorf("--org: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			publisher, err := mq.NewPublisher(cfg.MQ.URL)
			if err != nil {
				return err
			}
			defer publisher.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			ctx, traceID := trace.Ensure(ctx)

			p := mqcontracts.SyncRequestedPayload{
				RequestID: uuid.NewString(),
				OrgID:     orgID,
				Force:     force,
				TraceID:   traceID,
			}
			if err := publisher.Publish(ctx, mqcontracts.RoutingSyncRequested, p); err != nil {
				return fmt.Errorf("failed to publish sync request: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync requested: request_id=%s trace_id=%s\n", p.RequestID, traceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().BoolVar(&force, "force", false, "bypass throttle and fingerprint check")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
