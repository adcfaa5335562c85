package bank

import (
	"crypto/sha256"
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/solana-token-lab/bankrun/internal/solana"
)

// Queue limits matching the validator defaults.
const (
	DefaultMaxRecentBlockhashes = 300
	DefaultMaxProcessingAge     = 150
)

// blockhashQueue remembers the block height at which each recent blockhash
// was produced. The oldest entries fall out once the queue is full.
type blockhashQueue struct {
	entries *lru.Cache[solana.Hash, uint64]
	maxAge  uint64
}

func newBlockhashQueue(size int, maxAge uint64) (*blockhashQueue, error) {
	entries, err := lru.New[solana.Hash, uint64](size)
	if err != nil {
		return nil, err
	}
	return &blockhashQueue{entries: entries, maxAge: maxAge}, nil
}

func (q *blockhashQueue) register(hash solana.Hash, height uint64) {
	q.entries.Add(hash, height)
}

// isValid reports whether hash is known and not older than maxAge at currentHeight.
func (q *blockhashQueue) isValid(hash solana.Hash, currentHeight uint64) bool {
	height, ok := q.entries.Peek(hash)
	if !ok {
		return false
	}
	return currentHeight <= height+q.maxAge
}

// lastValidBlockHeight is the last height at which a hash registered at height is accepted.
func (q *blockhashQueue) lastValidBlockHeight(height uint64) uint64 {
	return height + q.maxAge
}

// nextBlockhash chains blockhashes deterministically: sha256(prev || slot).
func nextBlockhash(prev solana.Hash, slot uint64) solana.Hash {
	var buf [40]byte
	copy(buf[:32], prev[:])
	binary.LittleEndian.PutUint64(buf[32:], slot)
	return solana.Hash(sha256.Sum256(buf[:]))
}
