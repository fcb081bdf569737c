// Package solanarpc implements the authoritative transaction counter over
// Solana HTTP JSON-RPC.
//
// The client asks getBlock for signatures only, which is sufficient to count
// transactions and much cheaper than full transaction bodies.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/solwatch/geyser-verify/internal/pkg/jsonrpc"
	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.TransactionCounter
var _ outbound.TransactionCounter = (*Client)(nil)

const defaultCommitment = "finalized"

// ClientConfig holds the configuration for the Solana RPC client.
type ClientConfig struct {
	// Endpoint is the HTTP JSON-RPC endpoint URL. Required.
	Endpoint string

	// Commitment is the commitment level for getBlock queries.
	// Defaults to "finalized"; anything weaker may legitimately churn and
	// produce false mismatches.
	Commitment string

	// RPC configures timeout, retry, and rate limiting for the underlying
	// JSON-RPC client.
	RPC jsonrpc.Config

	// Logger is the structured logger for the client.
	Logger *slog.Logger
}

// Client counts block transactions via Solana JSON-RPC.
type Client struct {
	rpc        *jsonrpc.Client
	commitment string
	logger     *slog.Logger
}

// NewClient creates a new Solana RPC transaction counter.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = defaultCommitment
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC = jsonrpc.DefaultConfig()
	}

	return &Client{
		rpc:        jsonrpc.NewClient(cfg.Endpoint, cfg.RPC, cfg.Logger),
		commitment: cfg.Commitment,
		logger:     cfg.Logger.With("component", "solana-rpc"),
	}, nil
}

// Name returns the source name.
func (c *Client) Name() string {
	return "solana-rpc"
}

// CountTransactions fetches the block at the given slot and returns its
// transaction count. Slots the node cannot serve (skipped, pruned, or not yet
// visible) are reported as outbound.ErrBlockNotAvailable.
func (c *Client) CountTransactions(ctx context.Context, slot uint64) (uint64, error) {
	params := []any{slot, blockConfig{
		Encoding:                       "json",
		TransactionDetails:             "signatures",
		Rewards:                        false,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: 0,
	}}

	var block blockResult
	if err := c.rpc.Call(ctx, "getBlock", params, &block); err != nil {
		if isBlockNotAvailable(err) {
			return 0, fmt.Errorf("slot %d: %w", slot, outbound.ErrBlockNotAvailable)
		}
		return 0, fmt.Errorf("getBlock %d: %w", slot, err)
	}

	return uint64(len(block.Signatures)), nil
}

// isBlockNotAvailable reports whether the error means the node cannot serve
// the requested slot right now.
func isBlockNotAvailable(err error) bool {
	if errors.Is(err, jsonrpc.ErrNullResult) {
		return true
	}

	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}

	switch rpcErr.Code {
	case codeBlockCleanedUp, codeBlockNotAvailable, codeSlotSkipped, codeLongTermStorageSlotSkipped, codeTxHistoryNotAvailable:
		return true
	default:
		return false
	}
}
