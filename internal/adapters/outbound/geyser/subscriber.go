// Package geyser provides an adapter for a geyser-compatible block feed
// exposed over WebSocket JSON-RPC.
package geyser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// Compile-time check that Subscriber implements outbound.BlockSubscriber
var _ outbound.BlockSubscriber = (*Subscriber)(nil)

// Subscriber streams finalized block updates from a geyser WebSocket gateway
// with automatic reconnection.
type Subscriber struct {
	config Config

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	updates chan outbound.BlockUpdate

	onReconnect    func()
	lastUpdateTime atomic.Int64
}

// NewSubscriber creates a new geyser WebSocket subscriber with automatic
// reconnection. Returns an error if the endpoint is missing.
func NewSubscriber(config Config) (*Subscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()
	return &Subscriber{
		config:  config,
		done:    make(chan struct{}),
		updates: make(chan outbound.BlockUpdate, config.ChannelBufferSize),
	}, nil
}

// Subscribe starts listening for finalized block notifications.
// The subscription automatically reconnects if the connection is lost.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan outbound.BlockUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("subscriber is closed")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	go s.connectionManager()

	return s.updates, nil
}

// SetOnReconnect registers a callback invoked after each successful
// reconnection (not on the initial connect).
func (s *Subscriber) SetOnReconnect(callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnect = callback
}

// connectionManager manages the WebSocket connection with automatic
// reconnection. Retry attempts are unbounded; only cancellation or
// Unsubscribe stops them.
func (s *Subscriber) connectionManager() {
	backoff := s.config.InitialBackoff
	logger := s.config.Logger.With("component", "geyser-subscriber")
	isFirstConnect := true

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		default:
		}

		err := s.connectAndSubscribe()
		if err != nil {
			logger.Warn("failed to connect to block feed", "error", err, "backoff", backoff)

			select {
			case <-s.done:
				return
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
			continue
		}

		// Reset backoff on successful connection
		backoff = s.config.InitialBackoff

		if isFirstConnect {
			logger.Info("connected to block feed", "commitment", s.config.Commitment)
		} else {
			logger.Info("reconnected to block feed", "commitment", s.config.Commitment)
			s.mu.RLock()
			callback := s.onReconnect
			s.mu.RUnlock()
			if callback != nil {
				callback()
			}
		}
		isFirstConnect = false

		// Run the read loop until disconnection
		s.readLoop(logger)

		logger.Warn("block feed connection lost, reconnecting...")
	}
}

// connectAndSubscribe establishes the WebSocket connection and subscribes to
// finalized blocks with transaction details.
func (s *Subscriber) connectAndSubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header := http.Header{}
	if s.config.XToken != "" {
		header.Set("X-Token", s.config.XToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.config.Endpoint, header)
	if err != nil {
		return fmt.Errorf("failed to connect to block feed: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	// Pong handler extends the read deadline for connection health monitoring
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	s.conn = conn

	subscribeReq := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "blockSubscribe",
		Params: []any{"all", blockSubscribeConfig{
			Commitment:                     s.config.Commitment,
			Encoding:                       "json",
			TransactionDetails:             "signatures",
			ShowRewards:                    false,
			MaxSupportedTransactionVersion: 0,
		}},
	}

	if err := conn.WriteJSON(subscribeReq); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("failed to send subscription request: %w", err)
	}

	var response jsonRPCResponse
	if err := conn.ReadJSON(&response); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("failed to read subscription response: %w", err)
	}

	if response.Error != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("subscription failed: %s", response.Error.Message)
	}

	return nil
}

// readLoop continuously reads block notifications from the WebSocket
// connection. It also sends periodic pings to keep the connection alive.
func (s *Subscriber) readLoop(logger *slog.Logger) {
	pingTicker := time.NewTicker(s.config.PingInterval)
	defer pingTicker.Stop()

	readErr := make(chan error, 1)
	updateChan := make(chan outbound.BlockUpdate, 10)

	go func() {
		for {
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn == nil {
				readErr <- errors.New("connection is nil")
				return
			}

			if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
				readErr <- fmt.Errorf("failed to set read deadline: %w", err)
				return
			}

			var response jsonRPCResponse
			if err := conn.ReadJSON(&response); err != nil {
				readErr <- err
				return
			}

			switch response.Method {
			case "blockNotification":
				update, err := parseBlockNotification(response.Params)
				if err != nil {
					logger.Warn("skipping malformed block notification", "error", err)
					continue
				}

				select {
				case updateChan <- *update:
				case <-s.done:
					return
				case <-s.ctx.Done():
					return
				}
			case "ping":
				// Application-level keepalive from the gateway; answer with
				// a pong frame so it keeps the subscription open.
				if err := conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(s.config.PongTimeout)); err != nil {
					logger.Warn("failed to answer feed ping", "error", err)
				}
				logger.Debug("answered feed ping")
			}
		}
	}()

	for {
		select {
		case <-s.done:
			s.closeConnection()
			return
		case <-s.ctx.Done():
			s.closeConnection()
			return
		case err := <-readErr:
			logger.Warn("read error", "error", err)
			s.closeConnection()
			return
		case update := <-updateChan:
			if !s.forwardUpdate(update, logger) {
				s.closeConnection()
				return
			}
		case <-pingTicker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn != nil {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.PongTimeout)); err != nil {
					logger.Warn("ping failed", "error", err)
					s.closeConnection()
					return
				}
			}
		}
	}
}

// forwardUpdate delivers an update to the consumer channel without blocking;
// a lagging consumer drops the block with a warning. Holding the read lock
// orders the send against close(s.updates) in Unsubscribe. Returns false once
// the subscriber is closed.
func (s *Subscriber) forwardUpdate(update outbound.BlockUpdate, logger *slog.Logger) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.updates <- update:
		s.lastUpdateTime.Store(time.Now().Unix())
		logger.Debug("block update forwarded",
			"slot", update.Slot,
			"transactions", update.TransactionCount,
		)
	default:
		logger.Warn("block update channel full, dropping block",
			"slot", update.Slot,
		)
	}
	return true
}

// closeConnection safely closes the current WebSocket connection.
func (s *Subscriber) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Unsubscribe stops the subscription and closes the WebSocket connection.
func (s *Subscriber) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)

	if s.cancel != nil {
		s.cancel()
	}

	close(s.updates)

	if s.conn != nil {
		// Best-effort unsubscribe before closing
		unsubscribeReq := jsonRPCRequest{
			JSONRPC: "2.0",
			ID:      2,
			Method:  "blockUnsubscribe",
			Params:  []any{},
		}
		_ = s.conn.WriteJSON(unsubscribeReq)

		return s.conn.Close()
	}

	return nil
}

// HealthCheck verifies the WebSocket connection is operational and the feed
// is delivering blocks.
func (s *Subscriber) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New("subscriber is closed")
	}

	lastUpdate := s.lastUpdateTime.Load()
	if lastUpdate > 0 {
		sinceLastUpdate := time.Since(time.Unix(lastUpdate, 0))
		if sinceLastUpdate > s.config.HealthTimeout {
			return fmt.Errorf("no blocks received for %v (threshold: %v)", sinceLastUpdate, s.config.HealthTimeout)
		}
	}

	if s.conn == nil {
		// Not yet connected, try a temporary connection
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.config.Endpoint, nil)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		conn.Close()
		return nil
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}
