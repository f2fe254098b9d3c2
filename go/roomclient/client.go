// Package roomclient maintains the duplex channel between a participant
// and a room: dialing, reconnecting with capped exponential backoff,
// shaping outbound vote bursts through a debounce window, and fanning
// inbound room events out to typed subscribers.
package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/pointcasthq/pointcast/go/room"
)

var (
	// ErrNotConnected is returned by outbound intents when no channel is
	// open. Callers decide whether to retry or inform the user.
	ErrNotConnected = errors.New("roomclient: not connected")

	// ErrConnectionLost is passed to OnConnectionLost after the reconnect
	// budget is exhausted.
	ErrConnectionLost = errors.New("roomclient: connection lost")

	// ErrSendBufferFull is returned when the outbound queue cannot accept
	// another message.
	ErrSendBufferFull = errors.New("roomclient: send buffer full")
)

// wsConn bundles one live websocket with its outbound queue. done is
// closed exactly once when the connection is torn down.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Client owns at most one live channel to a room. All inbound events are
// delivered to subscribers in receipt order from a single read loop.
type Client struct {
	config     Config
	clock      clockwork.Clock
	dispatcher *dispatcher

	mu             sync.Mutex
	cur            *wsConn
	closed         bool
	attempts       int
	bo             *backoff.ExponentialBackOff
	reconnectTimer clockwork.Timer
	voteTimer      clockwork.Timer
	pendingVote    Vote
	lifeCtx        context.Context
	lifeCancel     context.CancelFunc
}

// New creates a client for one room membership. Call Dial to open the
// channel.
func New(cfg Config) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		config:     cfg,
		clock:      clock,
		dispatcher: newDispatcher(),
		bo:         newBackoff(cfg),
	}
}

// Dial opens the channel to the room. A fresh explicit Dial always resets
// the retry budget, including after a terminal connection-lost condition.
// Any previously open channel is closed first so at most one is live.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	c.closed = false
	c.attempts = 0
	c.bo = newBackoff(c.config)
	if c.lifeCtx == nil || c.lifeCtx.Err() != nil {
		c.lifeCtx, c.lifeCancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	target, err := c.roomURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.scheduleReconnectLocked(err)
		}
		c.mu.Unlock()
		return fmt.Errorf("dial room channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	}
	if c.cur != nil {
		// Enforce the single-channel rule before swapping in the new one.
		close(c.cur.done)
		c.cur.ws.Close()
	}
	w := &wsConn{
		ws:   conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	c.cur = w
	c.attempts = 0
	c.bo = newBackoff(c.config)
	c.mu.Unlock()

	go c.writePump(w)
	go c.readPump(w)

	log.Info().
		Str("room", c.config.RoomKey).
		Str("user", c.config.DisplayName).
		Msg("room channel established")
	return nil
}

func (c *Client) roomURL() (string, error) {
	u, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	q := u.Query()
	q.Set("room", c.config.RoomKey)
	q.Set("name", c.config.DisplayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Close shuts the channel down with a normal-closure signal, which
// suppresses the reconnect policy, and cancels any pending debounce or
// backoff timer. It is idempotent and safe to call at any time.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.voteTimer != nil {
		stopAndDrainTimer(c.voteTimer)
		c.voteTimer = nil
	}
	if c.reconnectTimer != nil {
		stopAndDrainTimer(c.reconnectTimer)
		c.reconnectTimer = nil
	}
	w := c.cur
	c.cur = nil
	cancel := c.lifeCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if w != nil {
		deadline := time.Now().Add(c.config.WriteTimeout)
		w.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		close(w.done)
		w.ws.Close()
	}
	return nil
}

// readPump applies events in receipt order. Malformed frames are logged
// and dropped without touching subscriber state.
func (c *Client) readPump(w *wsConn) {
	w.ws.SetReadLimit(c.config.MaxMessageSize)
	w.ws.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	w.ws.SetPongHandler(func(string) error {
		w.ws.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
		return nil
	})

	for {
		_, msg, err := w.ws.ReadMessage()
		if err != nil {
			c.handleClose(w, err)
			return
		}

		var ev room.Event
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Type == "" {
			log.Warn().
				Err(err).
				Str("room", c.config.RoomKey).
				Msg("dropping malformed room event")
			continue
		}
		c.dispatcher.dispatch(ev)
	}
}

// writePump is the only goroutine that writes to the websocket. It also
// keeps the connection alive with pings.
func (c *Client) writePump(w *wsConn) {
	ticker := c.clock.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-w.send:
			w.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := w.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Error().Err(err).Str("room", c.config.RoomKey).Msg("room channel write failed")
				return
			}
		case <-ticker.Chan():
			w.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := w.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

// handleClose runs once per connection when its read loop ends. A normal
// closure or a user-initiated Close ends the lifecycle; anything else
// enters the reconnect policy.
func (c *Client) handleClose(w *wsConn, err error) {
	c.mu.Lock()
	if c.cur != w {
		// Already superseded or torn down by Close.
		c.mu.Unlock()
		return
	}
	c.cur = nil
	close(w.done)
	w.ws.Close()

	if c.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.mu.Unlock()
		log.Info().Str("room", c.config.RoomKey).Msg("room channel closed")
		return
	}

	log.Warn().Err(err).Str("room", c.config.RoomKey).Msg("room channel dropped")
	c.scheduleReconnectLocked(err)
	c.mu.Unlock()
}

// scheduleReconnectLocked arms the next reconnect attempt. Caller holds
// c.mu. A reconnected session receives a fresh initialize from the server
// rather than diffing across the missed-event window.
func (c *Client) scheduleReconnectLocked(cause error) {
	if c.attempts >= c.config.MaxReconnectAttempts {
		log.Error().
			Err(cause).
			Int("attempts", c.attempts).
			Str("room", c.config.RoomKey).
			Msg("reconnect budget exhausted")
		if cb := c.config.OnConnectionLost; cb != nil {
			go cb(ErrConnectionLost)
		}
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.bo.NextBackOff()

	if c.reconnectTimer != nil {
		stopAndDrainTimer(c.reconnectTimer)
	}
	timer := c.clock.NewTimer(delay)
	c.reconnectTimer = timer
	ctx := c.lifeCtx

	log.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Str("room", c.config.RoomKey).
		Msg("scheduling reconnect")

	go func() {
		select {
		case <-timer.Chan():
			if err := c.dial(ctx); err != nil {
				// dial has already scheduled the next attempt if the
				// budget allows one.
				log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			}
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		}
	}()
}

// Connected reports whether a channel is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// On subscribes handler to inbound events of type t (or EventAny for all
// of them) and returns a handle for Off.
func (c *Client) On(t room.EventType, h Handler) Subscription {
	return c.dispatcher.on(t, h)
}

// Off removes a subscription. Unsubscribing twice is a no-op.
func (c *Client) Off(sub Subscription) {
	c.dispatcher.off(sub)
}

// stopAndDrainTimer safely stops a timer and drains its channel to
// prevent goroutine leaks, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
