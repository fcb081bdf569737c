package solanarpc

// blockConfig is the configuration object passed as the second getBlock param.
//
// MaxSupportedTransactionVersion has no omitempty: the zero value must reach
// the wire. A node that never sees the field refuses blocks containing
// versioned transactions, which surfaces as a systematic undercount on the
// authoritative side.
type blockConfig struct {
	Encoding                       string `json:"encoding"`
	TransactionDetails             string `json:"transactionDetails"`
	Rewards                        bool   `json:"rewards"`
	Commitment                     string `json:"commitment"`
	MaxSupportedTransactionVersion int    `json:"maxSupportedTransactionVersion"`
}

// blockResult is the subset of the getBlock response this client reads.
// With transactionDetails "signatures", the node returns one signature per
// transaction and omits transaction bodies.
type blockResult struct {
	Blockhash         string   `json:"blockhash"`
	PreviousBlockhash string   `json:"previousBlockhash"`
	ParentSlot        uint64   `json:"parentSlot"`
	Signatures        []string `json:"signatures"`
	BlockTime         *int64   `json:"blockTime"`
	BlockHeight       *uint64  `json:"blockHeight"`
}

// JSON-RPC error codes under which a node cannot serve a block for a slot.
const (
	codeBlockCleanedUp             = -32001
	codeBlockNotAvailable          = -32004
	codeSlotSkipped                = -32007
	codeLongTermStorageSlotSkipped = -32009
	codeTxHistoryNotAvailable      = -32011
)
