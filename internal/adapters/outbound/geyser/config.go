package geyser

import (
	"errors"
	"log/slog"
	"time"
)

// Default configuration values for reconnection and keepalive.
const (
	defaultCommitment        = "finalized"
	defaultInitialBackoff    = 1 * time.Second
	defaultMaxBackoff        = 30 * time.Second
	defaultBackoffFactor     = 2.0
	defaultPingInterval      = 30 * time.Second
	defaultPongTimeout       = 10 * time.Second
	defaultReadTimeout       = 60 * time.Second
	defaultChannelBufferSize = 100
	defaultHealthTimeout     = 60 * time.Second
)

// Config holds the configuration for the geyser WebSocket subscriber.
type Config struct {
	// Endpoint is the WebSocket endpoint URL of the block feed gateway.
	// Example: wss://geyser.example.com/ws
	Endpoint string

	// XToken is the access token sent in the X-Token header on dial.
	// Optional; left out when empty.
	XToken string

	// Commitment is the commitment level of the subscription filter.
	// Defaults to "finalized"; tentative blocks may churn and would
	// produce false mismatches downstream.
	Commitment string

	// InitialBackoff is the initial delay before reconnecting after a
	// disconnect. Defaults to 1 second if not set.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between reconnection attempts.
	// Defaults to 30 seconds if not set.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each failed
	// attempt. Defaults to 2.0 if not set.
	BackoffFactor float64

	// PingInterval is how often to send ping frames to keep the connection
	// alive. Defaults to 30 seconds if not set.
	PingInterval time.Duration

	// PongTimeout is how long a ping write may take before the connection is
	// considered dead. Defaults to 10 seconds if not set.
	PongTimeout time.Duration

	// ReadTimeout is the maximum time to wait for a message before
	// considering the connection dead. Defaults to 60 seconds if not set.
	ReadTimeout time.Duration

	// ChannelBufferSize is the size of the block update channel buffer.
	// Defaults to 100 if not set.
	ChannelBufferSize int

	// HealthTimeout is how long without receiving a block before the
	// subscriber reports unhealthy. Defaults to 60 seconds if not set.
	HealthTimeout time.Duration

	// Logger is the structured logger for the subscriber.
	// If not set, a default logger will be used.
	Logger *slog.Logger
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("Endpoint is required")
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.Commitment == "" {
		c.Commitment = defaultCommitment
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.ChannelBufferSize == 0 {
		c.ChannelBufferSize = defaultChannelBufferSize
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = defaultHealthTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
