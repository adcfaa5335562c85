package bank

// Rent parameters of the default cluster configuration.
const (
	accountStorageOverhead     = 128
	defaultLamportsPerByteYear = 3480
	defaultExemptionThreshold  = 2
)

// Rent computes rent-exempt minimum balances.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

// DefaultRent returns the mainnet rent configuration.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: defaultLamportsPerByteYear,
		ExemptionThreshold:  defaultExemptionThreshold,
	}
}

// MinimumBalance returns the lamports needed for an account of dataLen bytes to be rent exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (accountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThreshold
}
