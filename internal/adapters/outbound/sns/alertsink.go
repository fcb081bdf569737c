// Package sns implements the AlertSink interface using AWS SNS.
//
// This adapter publishes mismatch alerts to an SNS topic, where downstream
// consumers (pagers, dashboards, queue workers) can subscribe to be notified
// when the streaming path diverges from the authoritative source. Alerts are
// serialized as JSON messages.
//
// Message Attributes:
//   - slot: The slot of the mismatched block as a string
//   - delta: The streamed-minus-authoritative count difference as a string
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/solwatch/geyser-verify/internal/pkg/retry"
	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// Compile-time check that AlertSink implements outbound.AlertSink
var _ outbound.AlertSink = (*AlertSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by AlertSink.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS alert sink.
type Config struct {
	// TopicARN is the ARN of the SNS topic mismatch alerts go to. Required.
	TopicARN string

	// Retry configures the retry behavior for transient publish failures.
	Retry retry.Config

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Retry: retry.Config{
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			BackoffFactor:  2.0,
			Jitter:         true,
		},
		Logger: slog.Default(),
	}
}

// AlertSink publishes mismatch alerts to AWS SNS.
type AlertSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewAlertSink creates a new SNS alert sink.
func NewAlertSink(client SNSPublisher, config Config) (*AlertSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.Retry.MaxRetries == 0 && config.Retry.InitialBackoff == 0 {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &AlertSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-alertsink"),
	}, nil
}

// Publish publishes a mismatch alert to SNS, retrying transient failures.
func (s *AlertSink) Publish(ctx context.Context, alert outbound.MismatchAlert) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("alert sink is closed")
	}
	s.mu.RUnlock()

	messageBytes, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.config.TopicARN),
		Message:  aws.String(string(messageBytes)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"slot": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatUint(alert.Slot, 10)),
			},
			"delta": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(alert.Delta, 10)),
			},
		},
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.Retry.MaxRetries,
			"backoff", backoff,
			"slot", alert.Slot,
			"error", err,
		)
	}

	err = retry.DoVoid(ctx, s.config.Retry, isRetryableError, onRetry, func() error {
		_, publishErr := s.client.Publish(ctx, input)
		return publishErr
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert to SNS: %w", err)
	}

	return nil
}

// isRetryableError determines if a publish error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttleErr *types.ThrottledException
	if errors.As(err, &throttleErr) {
		return true
	}

	var internalErr *types.InternalErrorException
	if errors.As(err, &internalErr) {
		return true
	}

	var kmsThrottleErr *types.KMSThrottlingException
	if errors.As(err, &kmsThrottleErr) {
		return true
	}

	// Default to retrying on unknown errors (network issues, etc.)
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *AlertSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS alert sink closed")
	})
	return nil
}
