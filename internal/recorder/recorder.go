// Package recorder persists the outcome of every executed transaction.
package recorder

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/domain"
	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/solana"
	"github.com/solana-token-lab/bankrun/internal/storage"
)

// Store is a receipt store labelled for metrics and logs.
type Store struct {
	Name string // "memory", "postgres", "clickhouse"
	storage.ReceiptStore
}

// Options contains configuration for creating a Recorder.
type Options struct {
	Stores []Store
	// Clock stamps ProcessedAt. Defaults to time.Now.
	Clock  func() time.Time
	Logger *log.Logger
}

// Recorder is a bank.ReceiptSink that writes a TransactionReceipt to every
// configured store. Store failures are logged and counted, never returned:
// the transaction has already been committed.
type Recorder struct {
	stores []Store
	clock  func() time.Time
	logger *log.Logger
}

// Compile-time interface check.
var _ bank.ReceiptSink = (*Recorder)(nil)

// New creates a recorder.
func New(opts Options) *Recorder {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		stores: opts.Stores,
		clock:  clock,
		logger: logger,
	}
}

// OnTransaction records meta in metrics and in every store.
func (r *Recorder) OnTransaction(ctx context.Context, meta *solana.TransactionMeta) {
	observability.RecordTransaction(meta.Err != nil, meta.Slot, meta.ComputeUnitsConsumed)

	receipt := ToReceipt(meta, r.clock())
	for _, s := range r.stores {
		start := time.Now()
		err := s.Insert(ctx, receipt)
		observability.RecordDBQuery(s.Name, "insert_receipt", time.Since(start).Seconds(), err)

		switch {
		case err == nil:
			observability.RecordReceiptStored(s.Name)
		case errors.Is(err, storage.ErrDuplicateKey):
			r.logger.Printf("recorder: %s already has receipt %s", s.Name, receipt.Signature)
		default:
			r.logger.Printf("recorder: store receipt %s in %s: %v", receipt.Signature, s.Name, err)
		}
	}
}

// ToReceipt converts an execution result into its persisted form.
func ToReceipt(meta *solana.TransactionMeta, processedAt time.Time) *domain.TransactionReceipt {
	keys := make([]string, len(meta.AccountKeys))
	for i, k := range meta.AccountKeys {
		keys[i] = k.String()
	}

	receipt := &domain.TransactionReceipt{
		Signature:    meta.Signature,
		Slot:         int64(meta.Slot),
		Success:      meta.Err == nil,
		Fee:          int64(meta.Fee),
		ComputeUnits: int64(meta.ComputeUnitsConsumed),
		AccountKeys:  keys,
		LogMessages:  append([]string(nil), meta.LogMessages...),
		ProcessedAt:  processedAt.UnixMilli(),
	}
	if meta.Err != nil {
		msg := meta.Err.Error()
		receipt.Err = &msg
	}
	return receipt
}
