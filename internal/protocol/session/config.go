package session

import (
	"fmt"
	"time"

	"github.com/danmuck/rdtctl/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection reliability settings.
type Config struct {
	// AcceptTimeout bounds the wait for the first SYN. Zero waits until ctx is done.
	AcceptTimeout time.Duration
	// HandshakeTimeout bounds each handshake reply wait.
	HandshakeTimeout time.Duration
	// AckTimeout bounds each data acknowledgment wait.
	AckTimeout time.Duration
	// ReadTimeout bounds a Receive call. Zero waits until ctx is done.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxRetries is the number of retransmissions per exchange. Zero keeps
	// every exchange single-shot. SYN_ACKs resent for a repeated SYN do not
	// count against it.
	MaxRetries        int
	MaxPayload        int
	ReceiveBufferSize int
	Backoff           BackoffConfig
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  time.Second,
		AckTimeout:        500 * time.Millisecond,
		WriteTimeout:      5 * time.Second,
		MaxRetries:        5,
		MaxPayload:        frame.MaxPayload,
		ReceiveBufferSize: 1024,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset durations and sizes. MaxRetries and the optional
// timeouts are left as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = def.MaxPayload
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = def.ReceiveBufferSize
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.AcceptTimeout < 0:
		return fmt.Errorf("%w: accept timeout must be >= 0", ErrInvalidConfig)
	case c.ReadTimeout < 0:
		return fmt.Errorf("%w: read timeout must be >= 0", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	case c.MaxPayload > frame.MaxPayload:
		return fmt.Errorf("%w: max payload %d exceeds %d", ErrInvalidConfig, c.MaxPayload, frame.MaxPayload)
	case c.Backoff.Multiplier < 0:
		return fmt.Errorf("%w: backoff multiplier must be >= 0", ErrInvalidConfig)
	case c.Backoff.MaxDelay > 0 && c.Backoff.MaxDelay < c.Backoff.InitialDelay:
		return fmt.Errorf("%w: backoff max delay below initial delay", ErrInvalidConfig)
	}
	return nil
}
