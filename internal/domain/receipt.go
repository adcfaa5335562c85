package domain

// TransactionReceipt is the persisted outcome of one executed transaction.
// Corresponds to transaction_receipts in PostgreSQL and ClickHouse.
type TransactionReceipt struct {
	Signature    string   // PK, base-58 first signature
	Slot         int64    // slot the transaction executed in
	Success      bool     // false when execution failed
	Err          *string  // execution error (nullable)
	Fee          int64    // lamports charged
	ComputeUnits int64    // compute units consumed
	AccountKeys  []string // message account keys in order
	LogMessages  []string // program logs
	ProcessedAt  int64    // when the receipt was recorded (ms)
}
