package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/config"
	"github.com/solana-token-lab/bankrun/internal/provider"
	"github.com/solana-token-lab/bankrun/internal/recorder"
	"github.com/solana-token-lab/bankrun/internal/scenario"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Initialize a puppet account, set its value and read it back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, cfg, newLogger("scenario"))
		},
	}
	cmd.Flags().Uint64("value", scenario.DefaultValue, "value stored in the puppet account")
	cmd.Flags().Bool("versioned", false, "submit set_data as a v0 transaction")
	cmd.Flags().Bool("via-master", false, "set the value through the puppet master program")
	cmd.Flags().Bool("load-fixtures", false, "preload genesis accounts from PostgreSQL")
	return cmd
}

func runScenario(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	payer, err := loadWallet(cfg)
	if err != nil {
		return err
	}

	var p provider.SubmitOnlyProvider
	switch cfg.Backend {
	case config.BackendRPC:
		logger.Printf("Using JSON-RPC backend at %s", cfg.RPCEndpoint)
		p = newRPCProvider(cfg, payer, logger)

	default:
		st, err := openStores(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		rec := recorder.New(recorder.Options{Stores: st.receipts, Logger: logger})
		sess, err := scenario.StartSession(ctx, scenario.SessionOptions{
			Fixtures: st.fixtures,
			Sinks:    []bank.ReceiptSink{rec},
			Payer:    payer,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		logger.Printf("Started in-process bank at slot %d, payer %s", currentSlot(ctx, sess), payer.PublicKey())
		p = sess.Provider
	}

	res, err := scenario.Run(ctx, p, scenario.Options{
		Value:     cfg.Value,
		Versioned: cfg.Versioned,
		ViaMaster: cfg.ViaMaster,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("puppet:     %s\n", res.Puppet)
	fmt.Printf("initialize: %s\n", res.InitSignature)
	fmt.Printf("set_data:   %s\n", res.SetSignature)
	fmt.Printf("value:      %d\n", res.Value)
	fmt.Printf("duration:   %s\n", res.Duration)
	return nil
}

func newRPCProvider(cfg *config.Config, payer *solana.Keypair, logger *log.Logger) *provider.RPCProvider {
	return provider.NewRPCProvider(solana.NewHTTPClient(cfg.RPCEndpoint), solana.NewKeypairWallet(payer), provider.RPCOptions{
		Confirm:        provider.ConfirmOptions{Commitment: solana.Commitment(cfg.Commitment)},
		PollInterval:   cfg.PollInterval,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
	})
}

func currentSlot(ctx context.Context, sess *scenario.Session) uint64 {
	slot, _ := sess.Bank.GetSlot(ctx)
	return slot
}
