package bank

import (
	"context"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// ReceiptSink observes every transaction that reaches execution, successful
// or not. Sinks run after the bank lock is released, in registration order.
type ReceiptSink interface {
	OnTransaction(ctx context.Context, meta *solana.TransactionMeta)
}

// SinkFunc adapts a function to ReceiptSink.
type SinkFunc func(ctx context.Context, meta *solana.TransactionMeta)

// OnTransaction calls f.
func (f SinkFunc) OnTransaction(ctx context.Context, meta *solana.TransactionMeta) {
	f(ctx, meta)
}
