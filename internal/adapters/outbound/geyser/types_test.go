package geyser

import (
	"encoding/json"
	"testing"
)

func TestParseBlockNotification(t *testing.T) {
	params := json.RawMessage(`{
		"subscription": 42,
		"result": {
			"context": {"slot": 250123456},
			"value": {
				"slot": 250123456,
				"block": {
					"blockhash": "9B7mE4kQ",
					"previousBlockhash": "8A6lD3jP",
					"parentSlot": 250123455,
					"signatures": ["s1", "s2", "s3", "s4"],
					"blockTime": 1756600000
				},
				"err": null
			}
		}
	}`)

	update, err := parseBlockNotification(params)
	if err != nil {
		t.Fatalf("parseBlockNotification() error = %v", err)
	}

	if update.Slot != 250123456 {
		t.Errorf("Slot = %d, want 250123456", update.Slot)
	}
	if update.TransactionCount != 4 {
		t.Errorf("TransactionCount = %d, want 4", update.TransactionCount)
	}
}

func TestParseBlockNotification_EmptyBlock(t *testing.T) {
	params := json.RawMessage(`{
		"subscription": 42,
		"result": {
			"value": {
				"slot": 100,
				"block": {"blockhash": "x", "signatures": []},
				"err": null
			}
		}
	}`)

	update, err := parseBlockNotification(params)
	if err != nil {
		t.Fatalf("parseBlockNotification() error = %v", err)
	}
	if update.TransactionCount != 0 {
		t.Errorf("TransactionCount = %d, want 0", update.TransactionCount)
	}
}

func TestParseBlockNotification_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params string
	}{
		{
			name:   "invalid JSON",
			params: `{not json`,
		},
		{
			name:   "missing block",
			params: `{"subscription":42,"result":{"value":{"slot":100,"block":null,"err":null}}}`,
		},
		{
			name:   "failed block",
			params: `{"subscription":42,"result":{"value":{"slot":100,"err":"InstructionError"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseBlockNotification(json.RawMessage(tt.params)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
