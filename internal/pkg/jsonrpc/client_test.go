package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testClientConfig() Config {
	return Config{
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
		RateLimit:      rate.Inf,
		RateBurst:      1,
	}
}

func TestCallSuccess(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":42}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	var result struct {
		Value int `json:"value"`
	}
	err := client.Call(context.Background(), "getValue", []any{"param"}, &result)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Value != 42 {
		t.Errorf("result.Value = %d, want 42", result.Value)
	}

	var req map[string]any
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if req["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v, want 2.0", req["jsonrpc"])
	}
	if req["method"] != "getValue" {
		t.Errorf("method = %v, want getValue", req["method"])
	}
}

func TestCallSurfacesRPCErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32007,"message":"Slot 5 was skipped"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	err := client.Call(context.Background(), "getBlock", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}

	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if rpcErr.Code != -32007 {
		t.Errorf("Code = %d, want -32007", rpcErr.Code)
	}
	// RPC error objects are classified by the caller, never retried here.
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestCallRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	var result string
	if err := client.Call(context.Background(), "health", nil, &result); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls = %d, want 3", calls.Load())
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad request`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	err := client.Call(context.Background(), "getBlock", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestCallNullResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	var result struct{}
	err := client.Call(context.Background(), "getBlock", nil, &result)
	if !errors.Is(err, ErrNullResult) {
		t.Errorf("expected ErrNullResult, got %v", err)
	}
}

func TestCallNilResultIgnoresBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	// Callers that don't care about the result pass nil.
	if err := client.Call(context.Background(), "blockUnsubscribe", nil, nil); err != nil {
		t.Errorf("Call() error = %v", err)
	}
}

func TestCallIncrementsRequestID(t *testing.T) {
	var ids []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.Unmarshal(body, &req)
		ids = append(ids, req.ID)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), nil)

	var result string
	for i := 0; i < 3; i++ {
		if err := client.Call(context.Background(), "health", nil, &result); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
	}

	if len(ids) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("request IDs not increasing: %v", ids)
		}
	}
}
