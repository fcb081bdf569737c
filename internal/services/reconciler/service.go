// Package reconciler continuously checks that a streamed block feed agrees
// with an authoritative RPC source on the transaction count of every
// finalized block.
//
// Blocks are processed strictly one at a time: fetch, compare, record. This
// keeps per-block log lines in arrival order and bounds resource usage; it
// deliberately gives up overlapping network latency, which is acceptable at
// the block rates this tool targets.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solwatch/geyser-verify/internal/pkg/retry"
	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// sessionState tracks where a run is in its lifecycle.
type sessionState string

const (
	stateIdle        sessionState = "idle"
	stateSubscribing sessionState = "subscribing"
	stateStreaming   sessionState = "streaming"
	stateDraining    sessionState = "draining"
	stateFinished    sessionState = "finished"
)

// ServiceConfig holds configuration for the reconciliation service.
type ServiceConfig struct {
	// Duration bounds the run. The timer is armed when Run starts; once it
	// fires no new fetch is initiated. Defaults to 60 seconds.
	Duration time.Duration

	// FetchTimeout bounds a single authoritative fetch, including its
	// bounded retries. A fetch in flight when the run timer fires may run
	// up to this long before the report is finalized. Defaults to 15s.
	FetchTimeout time.Duration

	// FetchRetry configures the bounded retry applied when the
	// authoritative source cannot serve a block yet.
	FetchRetry retry.Config

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() ServiceConfig {
	return ServiceConfig{
		Duration:     60 * time.Second,
		FetchTimeout: 15 * time.Second,
		FetchRetry: retry.Config{
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		Logger: slog.Default(),
	}
}

// Service runs the reconciliation loop for one bounded session.
type Service struct {
	config     ServiceConfig
	subscriber outbound.BlockSubscriber
	counter    outbound.TransactionCounter
	alerts     outbound.AlertSink
	metrics    outbound.MetricsRecorder
	logger     *slog.Logger

	state sessionState
	seen  map[uint64]struct{}
}

// NewService creates a new reconciliation service. alerts and metrics are
// optional and may be nil.
func NewService(
	config ServiceConfig,
	subscriber outbound.BlockSubscriber,
	counter outbound.TransactionCounter,
	alerts outbound.AlertSink,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber is required")
	}
	if counter == nil {
		return nil, fmt.Errorf("counter is required")
	}

	defaults := DefaultConfig()
	if config.Duration == 0 {
		config.Duration = defaults.Duration
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}
	if config.FetchRetry.MaxRetries == 0 && config.FetchRetry.InitialBackoff == 0 {
		config.FetchRetry = defaults.FetchRetry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:     config,
		subscriber: subscriber,
		counter:    counter,
		alerts:     alerts,
		metrics:    metrics,
		logger:     config.Logger.With("component", "reconciler"),
		state:      stateIdle,
		seen:       make(map[uint64]struct{}),
	}, nil
}

// Run blocks for the configured duration, reconciling every streamed block
// against the authoritative source, and returns the final report.
//
// Cancellation is cooperative and single-shot: when the timer fires (or ctx
// is cancelled) the subscriber stops retrying, no new fetch is started, the
// block in flight finishes, and buffered updates are discarded.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.subscriber.SetOnReconnect(func() {
		s.logger.Info("stream reconnected, resuming comparisons")
		if s.metrics != nil {
			s.metrics.RecordReconnect(ctx)
		}
	})

	s.setState(stateSubscribing)
	updates, err := s.subscriber.Subscribe(runCtx)
	if err != nil {
		return nil, fmt.Errorf("subscribing to block feed: %w", err)
	}
	defer func() {
		if err := s.subscriber.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", "error", err)
		}
	}()

	s.logger.Info("reconciliation run started",
		"duration", s.config.Duration,
		"source", s.counter.Name(),
	)

	report := NewReport()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case update, ok := <-updates:
			if !ok {
				s.logger.Info("block feed closed, finishing run early")
				break loop
			}
			if s.state == stateSubscribing {
				s.setState(stateStreaming)
			}
			// The timer may have fired while this update sat buffered;
			// never start a new fetch past the deadline.
			if runCtx.Err() != nil {
				break loop
			}
			s.processUpdate(ctx, update, report)
		}
	}

	// Sequential processing means the in-flight block already finished;
	// whatever is still buffered on the channel is discarded.
	s.setState(stateDraining)
	report.Finalize()
	s.setState(stateFinished)

	s.logger.Info("reconciliation run finished",
		"blocks", report.BlocksReceived,
		"mismatches", report.MismatchCount(),
		"fetch_failures", report.FetchFailures,
	)

	return report, nil
}

// processUpdate runs one block through fetch, compare, and record. Exactly
// one outcome is produced per block; statistics are updated before the next
// block is started.
func (s *Service) processUpdate(ctx context.Context, update outbound.BlockUpdate, report *Report) {
	if _, dup := s.seen[update.Slot]; dup {
		s.logger.Debug("duplicate block update, skipping", "slot", update.Slot)
		return
	}

	// Bound the fetch on the parent context, not the run timer: a fetch in
	// flight at the deadline may finish, but never longer than FetchTimeout.
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	isRetryable := func(err error) bool {
		return errors.Is(err, outbound.ErrBlockNotAvailable)
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Debug("block not yet available, retrying fetch",
			"slot", update.Slot,
			"attempt", attempt,
			"backoff", backoff,
		)
	}

	start := time.Now()
	rpcCount, err := retry.Do(fetchCtx, s.config.FetchRetry, isRetryable, onRetry, func() (uint64, error) {
		return s.counter.CountTransactions(fetchCtx, update.Slot)
	})
	fetchDuration := time.Since(start)

	var outcome Outcome
	if err != nil {
		outcome = Skipped(update.Slot, update.TransactionCount)
		s.logger.Warn("SKIPPED",
			"slot", update.Slot,
			"grpc_tx", update.TransactionCount,
			"error", err,
		)
	} else {
		outcome = Compare(update.Slot, update.TransactionCount, rpcCount)
		if outcome.Status == StatusMismatch {
			s.logger.Info("MISMATCH",
				"slot", outcome.Slot,
				"grpc_tx", outcome.StreamTxCount,
				"rpc_tx", outcome.RPCTxCount,
				"delta", outcome.Delta,
			)
			s.publishAlert(ctx, outcome)
		} else {
			s.logger.Info("MATCH",
				"slot", outcome.Slot,
				"grpc_tx", outcome.StreamTxCount,
				"rpc_tx", outcome.RPCTxCount,
			)
		}
	}

	report.AddOutcome(outcome)
	s.seen[update.Slot] = struct{}{}

	if s.metrics != nil {
		s.metrics.RecordComparison(ctx, outcome.Status, fetchDuration)
	}
}

// publishAlert sends a mismatch alert downstream, best effort.
func (s *Service) publishAlert(ctx context.Context, o Outcome) {
	if s.alerts == nil {
		return
	}

	alert := outbound.MismatchAlert{
		Slot:          o.Slot,
		StreamTxCount: o.StreamTxCount,
		RPCTxCount:    o.RPCTxCount,
		Delta:         o.Delta,
		DetectedAt:    time.Now(),
	}
	if err := s.alerts.Publish(ctx, alert); err != nil {
		s.logger.Warn("failed to publish mismatch alert", "slot", o.Slot, "error", err)
	}
}

func (s *Service) setState(next sessionState) {
	s.logger.Debug("session state changed", "from", string(s.state), "to", string(next))
	s.state = next
}
