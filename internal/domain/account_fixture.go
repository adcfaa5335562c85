package domain

// AccountFixture is an account loaded into the simulator at genesis.
// Corresponds to account_fixtures table in PostgreSQL.
type AccountFixture struct {
	Address    string // PK, base-58 public key
	Label      string // human readable name
	Lamports   int64
	Owner      string // base-58 owner program
	Data       []byte
	Executable bool
	RentEpoch  int64
	CreatedAt  int64 // record creation timestamp (ms)
}
