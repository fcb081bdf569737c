package reconciler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status constants for block comparison outcomes.
const (
	// StatusMatch means the streamed and authoritative counts agree.
	StatusMatch = "match"

	// StatusMismatch means the counts disagree, in either direction.
	StatusMismatch = "mismatch"

	// StatusSkipped means the authoritative fetch failed and the block was
	// not compared. Never conflated with a match or a mismatch.
	StatusSkipped = "skipped"
)

// Outcome is the comparison result for a single block.
type Outcome struct {
	// Slot is the slot of the compared block.
	Slot uint64 `json:"slot"`

	// StreamTxCount is the transaction count reported by the feed.
	StreamTxCount uint64 `json:"streamTxCount"`

	// RPCTxCount is the count re-derived from the authoritative source.
	// Zero and meaningless for skipped outcomes.
	RPCTxCount uint64 `json:"rpcTxCount"`

	// Delta is StreamTxCount minus RPCTxCount. Zero for skipped outcomes.
	Delta int64 `json:"delta"`

	// Status is one of StatusMatch, StatusMismatch, StatusSkipped.
	Status string `json:"status"`
}

// Compare classifies a pair of transaction counts for a slot. It is a pure
// function of its inputs: the same pair always yields the same outcome.
func Compare(slot, streamCount, rpcCount uint64) Outcome {
	delta := int64(streamCount) - int64(rpcCount)
	status := StatusMatch
	if delta != 0 {
		status = StatusMismatch
	}
	return Outcome{
		Slot:          slot,
		StreamTxCount: streamCount,
		RPCTxCount:    rpcCount,
		Delta:         delta,
		Status:        status,
	}
}

// Skipped builds the outcome recorded when the authoritative fetch failed.
func Skipped(slot, streamCount uint64) Outcome {
	return Outcome{
		Slot:          slot,
		StreamTxCount: streamCount,
		Status:        StatusSkipped,
	}
}

// Report accumulates run-wide statistics. It is owned by a single processing
// goroutine for the duration of a run; each outcome is applied atomically
// with respect to its block.
type Report struct {
	// StartTime is when the run started.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the run completed.
	EndTime time.Time `json:"end_time"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// BlocksReceived counts every block that reached a final outcome,
	// including skipped ones.
	BlocksReceived uint64 `json:"blocks_received"`

	// TotalStreamTxs is the exact running sum of streamed transaction counts
	// over compared (non-skipped) blocks.
	TotalStreamTxs uint64 `json:"total_stream_txs"`

	// TotalRPCTxs is the exact running sum of authoritative transaction
	// counts over compared (non-skipped) blocks.
	TotalRPCTxs uint64 `json:"total_rpc_txs"`

	// Mismatches lists mismatched outcomes in detection order.
	Mismatches []Outcome `json:"mismatches"`

	// FetchFailures counts blocks whose comparison was skipped because the
	// authoritative fetch failed.
	FetchFailures uint64 `json:"fetch_failures"`
}

// NewReport creates a new empty report with the start time set.
func NewReport() *Report {
	return &Report{
		StartTime:  time.Now(),
		Mismatches: make([]Outcome, 0),
	}
}

// AddOutcome applies one finished comparison to the running statistics.
// Skipped blocks count toward BlocksReceived but contribute to neither
// transaction sum.
func (r *Report) AddOutcome(o Outcome) {
	r.BlocksReceived++
	switch o.Status {
	case StatusMatch:
		r.TotalStreamTxs += o.StreamTxCount
		r.TotalRPCTxs += o.RPCTxCount
	case StatusMismatch:
		r.TotalStreamTxs += o.StreamTxCount
		r.TotalRPCTxs += o.RPCTxCount
		r.Mismatches = append(r.Mismatches, o)
	case StatusSkipped:
		r.FetchFailures++
	}
}

// MismatchCount returns the number of mismatched blocks.
func (r *Report) MismatchCount() int {
	return len(r.Mismatches)
}

// Finalize completes the report with end time and duration.
func (r *Report) Finalize() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Clean returns true if no mismatch was detected.
func (r *Report) Clean() bool {
	return len(r.Mismatches) == 0
}

// FormatText returns the final report as human-readable text.
func (r *Report) FormatText() string {
	var sb strings.Builder

	sb.WriteString("============== FINAL REPORT ==============\n")
	sb.WriteString(fmt.Sprintf("Total Blocks Received: %d\n", r.BlocksReceived))
	sb.WriteString(fmt.Sprintf("Total gRPC Tx Count: %d\n", r.TotalStreamTxs))
	sb.WriteString(fmt.Sprintf("Total RPC Tx Count: %d\n", r.TotalRPCTxs))
	sb.WriteString(fmt.Sprintf("Mismatched Blocks: %d\n", len(r.Mismatches)))
	sb.WriteString(fmt.Sprintf("Fetch Failures: %d\n", r.FetchFailures))

	if len(r.Mismatches) > 0 {
		sb.WriteString("\n--- MISMATCH DETAILS ---\n")
		for _, m := range r.Mismatches {
			sb.WriteString(fmt.Sprintf("Slot %d mismatch: gRPC Tx Count=%d RPC Tx Count=%d\n",
				m.Slot, m.StreamTxCount, m.RPCTxCount))
		}
	}

	sb.WriteString("==========================================\n")

	return sb.String()
}

// FormatJSON returns the final report as JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	return string(data), nil
}
