// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package stream owns the long-lived websocket connection to the killmail
// source: connect, authenticate, subscribe, heartbeat, reconnect.
//
// The lifecycle is Disconnected -> Connecting -> Authenticating ->
// Subscribing -> Active -> Reconnecting. Events are delivered to the sink
// only while Active. Every failure class (dial, handshake timeout, read
// error, missed heartbeat) funnels into the same capped, jittered backoff;
// the client never gives up.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// maxMessageSize caps inbound frames.
const maxMessageSize = 512 * 1024 // 512 KB

// Sink receives decoded event payloads from the read loop. Submit must
// never block; it reports false when the payload was not accepted.
type Sink interface {
	Submit(raw []byte) bool
}

// Client maintains one logical connection to the killmail stream.
//
// One goroutine (Serve) owns the connection and the subscription state.
// ForceReconnect, ForceResubscribe, UpdateSubscription and Status are safe
// to call concurrently with the run loop.
type Client struct {
	cfg  config.StreamConfig
	sink Sink

	mu       sync.RWMutex // guards state, conn, sub, attempts
	state    State
	conn     *websocket.Conn
	sub      subscription
	attempts int

	// writeMu serializes data-frame writes; gorilla allows one writer.
	writeMu sync.Mutex

	// listMu guards the desired subscription lists fed in by the tracking
	// syncer. Declaration order is preserved; truncation keeps the first N.
	listMu     sync.RWMutex
	systems    []int64
	characters []int64

	reconnectCh   chan struct{}
	resubscribeCh chan struct{}
}

// NewClient creates a stream client delivering events to sink.
func NewClient(cfg config.StreamConfig, sink Sink) *Client {
	return &Client{
		cfg:           cfg,
		sink:          sink,
		state:         Disconnected,
		reconnectCh:   make(chan struct{}, 1),
		resubscribeCh: make(chan struct{}, 1),
	}
}

// Serve implements suture.Service: connect, pump, reconnect, forever.
func (c *Client) Serve(ctx context.Context) error {
	bo := newReconnectBackoff(c.cfg.ReconnectBase, c.cfg.ReconnectMax)

	defer c.setState(Disconnected)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.noteAttemptFailure()
			delay := bo.NextBackOff()
			logging.Warn().
				Err(err).
				Dur("retry_in", delay).
				Int("attempt", c.Status().ReconnectAttempts).
				Msg("stream connect failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.reconnectCh:
				// Operator asked for an immediate retry; skip the wait.
			case <-time.After(delay):
			}
			continue
		}

		bo.Reset()
		err = c.readLoop(ctx, conn)
		c.teardown(conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(Reconnecting)
		metrics.StreamReconnectsTotal.Inc()
		logging.Warn().Err(err).Msg("stream connection lost, reconnecting")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (c *Client) String() string {
	return "stream-client"
}

// connect dials, authenticates and subscribes. On success the client is
// Active with a fresh subscription state.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	// A force-reconnect must be able to interrupt an in-progress attempt.
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-attemptCtx.Done():
		case <-c.reconnectCh:
			if attemptCtx.Err() != nil {
				// The attempt already settled; this request belongs to the
				// live connection's control loop, so put it back.
				select {
				case c.reconnectCh <- struct{}{}:
				default:
				}
				return
			}
			cancel()
		}
	}()

	c.setState(Connecting)

	dialer := websocket.Dialer{
		HandshakeTimeout:  c.cfg.HandshakeTimeout,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(attemptCtx, c.cfg.URL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream dial (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stream dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	if c.cfg.Token != "" {
		c.setState(Authenticating)
		if err := c.writeJSON(conn, controlMessage{Action: "auth", Token: c.cfg.Token}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send auth: %w", err)
		}
		if err := awaitAck(conn, ackAuthOK, c.cfg.AuthTimeout); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("auth handshake: %w", err)
		}
	}

	c.setState(Subscribing)
	systems, characters := c.truncatedLists()
	if err := c.writeJSON(conn, controlMessage{Action: "subscribe", Systems: systems, Characters: characters}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send subscription: %w", err)
	}
	if err := awaitAck(conn, ackSubscribed, c.cfg.SubscribeTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscription ack: %w", err)
	}

	// A forced reconnect consumed mid-attempt cancels attemptCtx; honor it
	// by failing the attempt instead of promoting a connection the operator
	// asked to cycle.
	if err := attemptCtx.Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connection attempt aborted: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Active
	c.attempts = 0
	c.sub = subscription{
		connectionID: uuid.New().String(),
		connectedAt:  time.Now().UTC(),
		systems:      systems,
		characters:   characters,
	}
	connectionID := c.sub.connectionID
	c.mu.Unlock()

	metrics.StreamConnected.Set(1)
	logging.Info().
		Str("connection_id", connectionID).
		Int("systems", len(systems)).
		Int("characters", len(characters)).
		Msg("stream connected and subscribed")

	return conn, nil
}

// readLoop pumps frames from the connection until it fails. Pings and
// administrative control run in side goroutines; the loop itself only
// reads, so a slow pipeline can never stall the socket.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatWindow))
	})
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatWindow)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	go c.pingLoop(conn, done)
	go c.controlLoop(ctx, conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				metrics.StreamHeartbeatTimeoutsTotal.Inc()
				return fmt.Errorf("no server activity within %s: %w", c.cfg.HeartbeatWindow, err)
			}
			return err
		}

		// Server activity observed; push the heartbeat window out.
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatWindow)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		c.handleMessage(raw)
	}
}

// handleMessage routes one inbound frame: acknowledgement frames update
// the subscription state, anything else is an event payload for the sink.
// Malformed frames are logged and dropped; they are never fatal to the
// connection.
func (c *Client) handleMessage(raw []byte) {
	var ack ackMessage
	if err := json.Unmarshal(raw, &ack); err != nil {
		metrics.StreamMessagesTotal.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping malformed stream frame")
		return
	}

	if ack.Type != "" {
		if ack.Type == ackSubscribed {
			systems, characters := c.truncatedLists()
			c.mu.Lock()
			c.sub.systems = systems
			c.sub.characters = characters
			c.mu.Unlock()
			logging.Info().Int("systems", len(systems)).Int("characters", len(characters)).Msg("resubscription acknowledged")
		}
		return
	}

	metrics.StreamMessagesTotal.WithLabelValues("decoded").Inc()
	if !c.sink.Submit(raw) {
		metrics.StreamMessagesTotal.WithLabelValues("dropped").Inc()
	}
}

// pingLoop sends ping control frames so the server sees client liveness.
// WriteControl is safe concurrently with data writes.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.PingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The read loop will observe the dead connection.
				return
			}
		}
	}
}

// controlLoop services administrative operations while the connection is
// active: force-reconnect closes the socket (failing the blocked read),
// force-resubscribe replays the subscription request on the live socket.
func (c *Client) controlLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-c.reconnectCh:
			logging.Info().Msg("forced reconnect requested")
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "reconnect"),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
			return
		case <-c.resubscribeCh:
			systems, characters := c.truncatedLists()
			msg := controlMessage{Action: "subscribe", Systems: systems, Characters: characters}
			if err := c.writeJSON(conn, msg); err != nil {
				logging.Warn().Err(err).Msg("resubscribe write failed")
				_ = conn.Close()
				return
			}
			logging.Info().Int("systems", len(systems)).Int("characters", len(characters)).Msg("resubscription sent")
		}
	}
}

// teardown closes the connection and clears the per-connection state.
func (c *Client) teardown(conn *websocket.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	metrics.StreamConnected.Set(0)
}

// UpdateSubscription replaces the desired entity lists and nudges a
// resubscribe on the live connection. Called by the tracking syncer when
// the tracked sets change.
func (c *Client) UpdateSubscription(systems, characters []int64) {
	c.listMu.Lock()
	c.systems = append([]int64(nil), systems...)
	c.characters = append([]int64(nil), characters...)
	c.listMu.Unlock()

	c.ForceResubscribe()
}

// ForceReconnect tears down the current connection (or interrupts an
// in-progress attempt) and reconnects. Non-blocking.
func (c *Client) ForceReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// ForceResubscribe replays the subscription request on the live
// connection. Non-blocking; a no-op while disconnected (the next connect
// subscribes anyway).
func (c *Client) ForceResubscribe() {
	select {
	case c.resubscribeCh <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the connection state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		State:             c.state.String(),
		Connected:         c.state == Active,
		ConnectionID:      c.sub.connectionID,
		ConnectedAt:       c.sub.connectedAt,
		ReconnectAttempts: c.attempts,
		SubscribedSystems: len(c.sub.systems),
		SubscribedChars:   len(c.sub.characters),
	}
}

// truncatedLists applies the configured subscription maxima, keeping the
// first N ids in declaration order and logging any overflow.
func (c *Client) truncatedLists() (systems, characters []int64) {
	c.listMu.RLock()
	systems = append([]int64(nil), c.systems...)
	characters = append([]int64(nil), c.characters...)
	c.listMu.RUnlock()

	systems = truncate(systems, c.cfg.MaxSystems, "system")
	characters = truncate(characters, c.cfg.MaxCharacters, "character")
	return systems, characters
}

func truncate(ids []int64, max int, entity string) []int64 {
	if max <= 0 || len(ids) <= max {
		return ids
	}

	metrics.StreamSubscriptionTruncationsTotal.WithLabelValues(entity).Inc()
	logging.Warn().
		Str("entity", entity).
		Int("requested", len(ids)).
		Int("max", max).
		Int("dropped", len(ids)-max).
		Msg("subscription list truncated to configured maximum")

	return ids[:max]
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) noteAttemptFailure() {
	c.mu.Lock()
	c.state = Reconnecting
	c.attempts++
	c.mu.Unlock()
	metrics.StreamReconnectsTotal.Inc()
}

// writeJSON writes one data frame under the write lock.
func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// awaitAck reads frames until the wanted acknowledgement arrives or the
// timeout elapses. Event frames received before Active are discarded; the
// contract is that events flow only from the Active state.
func awaitAck(conn *websocket.Conn, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ack ackMessage
		if err := json.Unmarshal(raw, &ack); err != nil {
			continue
		}
		switch ack.Type {
		case want:
			return nil
		case ackError:
			return fmt.Errorf("server rejected request: %s", ack.Error)
		default:
			// Not the ack we are waiting for; keep reading until deadline.
		}
	}
}
