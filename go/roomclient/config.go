package roomclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

// Config holds configuration for a room client connection.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "wss://host/ws/room".
	ServerURL   string
	RoomKey     string
	DisplayName string

	// DebounceWindow is how long a submitted vote waits for a newer value
	// before it is actually sent.
	DebounceWindow time.Duration

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64

	// Reconnect policy. Attempts beyond MaxReconnectAttempts raise
	// OnConnectionLost and stop; only a fresh Dial resumes.
	MaxReconnectAttempts int
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	BackoffMultiplier    float64
	// BackoffJitter is the randomization factor: each delay is drawn
	// uniformly from [delay*(1-j), delay*(1+j)].
	BackoffJitter float64

	// OnConnectionLost fires once when the retry budget is exhausted.
	OnConnectionLost func(error)

	// Clock drives the debounce and reconnect timers. Defaults to the
	// real clock; tests inject a clockwork.FakeClock.
	Clock clockwork.Clock
}

// DefaultConfig returns the default connection configuration for a room.
func DefaultConfig(serverURL, roomKey, displayName string) Config {
	return Config{
		ServerURL:            serverURL,
		RoomKey:              roomKey,
		DisplayName:          displayName,
		DebounceWindow:       300 * time.Millisecond,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		PongTimeout:          60 * time.Second,
		PingInterval:         30 * time.Second,
		MaxMessageSize:       64 * 1024, // initialize carries full snapshots
		MaxReconnectAttempts: 5,
		BackoffInitial:       time.Second,
		BackoffMax:           30 * time.Second,
		BackoffMultiplier:    2,
		BackoffJitter:        0.15,
	}
}

// newBackoff builds the reconnect delay generator for a config.
func newBackoff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax
	b.Multiplier = cfg.BackoffMultiplier
	b.RandomizationFactor = cfg.BackoffJitter
	return b
}
