// types.go defines JSON-RPC wire types for the block feed gateway.
package geyser

import (
	"encoding/json"
	"fmt"

	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// jsonRPCRequest represents a JSON-RPC 2.0 request.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// jsonRPCResponse represents a JSON-RPC 2.0 response or server notification.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonRPCError represents a JSON-RPC 2.0 error.
type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// blockSubscribeConfig is the filter object of the blockSubscribe request.
//
// MaxSupportedTransactionVersion is sent without omitempty for the same
// reason as on the RPC side: version 0 must reach the wire or the gateway
// drops blocks containing versioned transactions from the feed.
type blockSubscribeConfig struct {
	Commitment                     string `json:"commitment"`
	Encoding                       string `json:"encoding"`
	TransactionDetails             string `json:"transactionDetails"`
	ShowRewards                    bool   `json:"showRewards"`
	MaxSupportedTransactionVersion int    `json:"maxSupportedTransactionVersion"`
}

// notificationParams is the params field of a blockNotification message.
type notificationParams struct {
	Subscription uint64             `json:"subscription"`
	Result       notificationResult `json:"result"`
}

type notificationResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value blockValue `json:"value"`
}

type blockValue struct {
	Slot  uint64        `json:"slot"`
	Block *blockPayload `json:"block"`
	Err   any           `json:"err"`
}

// blockPayload is the subset of the streamed block this subscriber reads.
// With transactionDetails "signatures", one entry per executed transaction.
type blockPayload struct {
	Blockhash         string   `json:"blockhash"`
	PreviousBlockhash string   `json:"previousBlockhash"`
	ParentSlot        uint64   `json:"parentSlot"`
	Signatures        []string `json:"signatures"`
	BlockTime         *int64   `json:"blockTime"`
}

// parseBlockNotification extracts a BlockUpdate from a blockNotification
// params payload.
func parseBlockNotification(raw json.RawMessage) (*outbound.BlockUpdate, error) {
	var params notificationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("parsing notification params: %w", err)
	}

	value := params.Result.Value
	if value.Err != nil {
		return nil, fmt.Errorf("slot %d: block marked failed by feed: %v", value.Slot, value.Err)
	}
	if value.Block == nil {
		return nil, fmt.Errorf("slot %d: notification carries no block", value.Slot)
	}

	return &outbound.BlockUpdate{
		Slot:             value.Slot,
		TransactionCount: uint64(len(value.Block.Signatures)),
	}, nil
}
