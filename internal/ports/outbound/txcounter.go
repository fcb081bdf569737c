package outbound

import (
	"context"
	"errors"
)

// ErrBlockNotAvailable indicates the authoritative source cannot serve the
// block for a slot: the slot was skipped, or the block is not yet visible
// from this endpoint. Callers treat it as transient and retry a bounded
// number of times before skipping the comparison.
var ErrBlockNotAvailable = errors.New("block not available")

// TransactionCounter re-derives a block's transaction count from an
// authoritative request/response source, independently of the streaming feed.
type TransactionCounter interface {
	// Name returns the source name (e.g., "solana-rpc").
	Name() string

	// CountTransactions returns the number of transactions in the block at
	// the given slot. Returns an error wrapping ErrBlockNotAvailable when
	// the slot cannot be served.
	CountTransactions(ctx context.Context, slot uint64) (uint64, error)
}
