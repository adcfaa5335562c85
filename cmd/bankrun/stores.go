package main

import (
	"context"
	"fmt"
	"log"

	"github.com/solana-token-lab/bankrun/internal/config"
	"github.com/solana-token-lab/bankrun/internal/recorder"
	"github.com/solana-token-lab/bankrun/internal/storage"
	chstore "github.com/solana-token-lab/bankrun/internal/storage/clickhouse"
	"github.com/solana-token-lab/bankrun/internal/storage/memory"
	"github.com/solana-token-lab/bankrun/internal/storage/migrations"
	pgstore "github.com/solana-token-lab/bankrun/internal/storage/postgres"
)

// stores holds the receipt and fixture stores selected by configuration.
type stores struct {
	receipts []recorder.Store
	fixtures storage.AccountFixtureStore
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects and migrates every configured database.
func openStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*stores, error) {
	s := &stores{}

	if cfg.UseMemory {
		logger.Println("Recording receipts in memory")
		s.receipts = append(s.receipts, recorder.Store{Name: "memory", ReceiptStore: memory.NewReceiptStore()})
		return s, nil
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Printf("Connected to PostgreSQL (%d migrations applied)", len(applied))
		s.receipts = append(s.receipts, recorder.Store{Name: "postgres", ReceiptStore: pgstore.NewReceiptStore(pool)})
		if cfg.LoadFixtures {
			s.fixtures = pgstore.NewAccountFixtureStore(pool)
		}
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		logger.Println("Connected to ClickHouse")
		s.receipts = append(s.receipts, recorder.Store{Name: "clickhouse", ReceiptStore: chstore.NewReceiptStore(conn)})
	}

	if len(s.receipts) == 0 {
		logger.Println("No receipt store configured; receipts are not persisted")
	}
	return s, nil
}
