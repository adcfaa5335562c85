package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/solana-token-lab/bankrun/internal/config"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bankrun",
		Short:         "Drive Anchor-style programs through an in-process ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "configuration file path")
	root.PersistentFlags().String("backend", config.BackendBank, "ledger backend: bank or rpc")
	root.PersistentFlags().String("rpc-endpoint", "", "JSON-RPC HTTP endpoint for the rpc backend")
	root.PersistentFlags().String("ws-endpoint", "", "PubSub WebSocket endpoint")
	root.PersistentFlags().String("keypair-path", "", "solana-keygen JSON keypair for the wallet")
	root.PersistentFlags().String("postgres-dsn", "", "PostgreSQL connection string")
	root.PersistentFlags().String("clickhouse-dsn", "", "ClickHouse connection string")
	root.PersistentFlags().Bool("use-memory", false, "record receipts in memory instead of the databases")

	root.AddCommand(newScenarioCmd(), newServeCmd(), newLogsCmd())
	return root
}

// loadConfig resolves configuration for cmd, including its inherited flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags|log.Lshortfile)
}

// loadWallet reads the configured keypair or generates a throwaway one.
func loadWallet(cfg *config.Config) (*solana.Keypair, error) {
	if cfg.KeypairPath == "" {
		return solana.NewKeypair()
	}
	return solana.KeypairFromFile(cfg.KeypairPath)
}
