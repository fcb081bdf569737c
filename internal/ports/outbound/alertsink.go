package outbound

import (
	"context"
	"time"
)

// MismatchAlert is published when the streamed and authoritative transaction
// counts for a block disagree.
type MismatchAlert struct {
	// Slot is the slot of the mismatched block.
	Slot uint64 `json:"slot"`

	// StreamTxCount is the transaction count reported by the feed.
	StreamTxCount uint64 `json:"streamTxCount"`

	// RPCTxCount is the transaction count re-derived from the RPC source.
	RPCTxCount uint64 `json:"rpcTxCount"`

	// Delta is StreamTxCount minus RPCTxCount.
	Delta int64 `json:"delta"`

	// DetectedAt is when the mismatch was detected.
	DetectedAt time.Time `json:"detectedAt"`
}

// AlertSink publishes mismatch alerts to downstream consumers.
// Publishing is best effort: a failed publish never fails the run.
type AlertSink interface {
	// Publish delivers one mismatch alert.
	Publish(ctx context.Context, alert MismatchAlert) error

	// Close closes the sink and releases any resources.
	Close() error
}
