package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

func newLogsCmd() *cobra.Command {
	var mentions []string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream transaction logs from a logsSubscribe endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			wsCfg := solana.DefaultWSConfig()
			wsCfg.Logger = newLogger("ws")
			client, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
			if err != nil {
				return err
			}
			defer client.Close()

			ch, err := client.SubscribeLogs(ctx, solana.LogsFilter{
				Mentions:   mentions,
				Commitment: solana.Commitment(cfg.Commitment),
			})
			if err != nil {
				return fmt.Errorf("subscribe logs: %w", err)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case n, ok := <-ch:
					if !ok {
						return nil
					}
					status := "ok"
					if n.Err != nil {
						status = fmt.Sprintf("failed: %v", n.Err)
					}
					fmt.Printf("slot %d %s %s\n  %s\n", n.Slot, n.Signature, status, strings.Join(n.Logs, "\n  "))
				}
			}
		},
	}
	cmd.Flags().StringSliceVar(&mentions, "mentions", nil, "only show transactions mentioning these addresses")
	return cmd
}
