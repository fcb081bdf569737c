// Package outbound defines the outbound port interfaces.
package outbound

import "context"

// BlockUpdate is one finalized block as reported by the streaming feed.
type BlockUpdate struct {
	// Slot is the slot the block was produced in.
	Slot uint64 `json:"slot"`

	// TransactionCount is the number of transactions the feed reported
	// for this block.
	TransactionCount uint64 `json:"transactionCount"`
}

// BlockSubscriber defines the interface for subscribing to finalized blocks.
// This port is designed for push-based feeds such as a geyser block stream:
// the subscription survives transport failures and only stops when the caller
// cancels or unsubscribes.
type BlockSubscriber interface {
	// Subscribe starts streaming finalized block updates. The returned
	// channel stays open across reconnects and is closed by Unsubscribe.
	Subscribe(ctx context.Context) (<-chan BlockUpdate, error)

	// Unsubscribe stops the subscription and releases the connection.
	Unsubscribe() error

	// SetOnReconnect registers a callback invoked after each successful
	// reconnection (not on the initial connect).
	SetOnReconnect(callback func())

	// HealthCheck verifies the feed is operational and delivering blocks.
	HealthCheck(ctx context.Context) error
}
