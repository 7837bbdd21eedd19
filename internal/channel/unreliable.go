package channel

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Impairment describes how an UnreliableConn damages traffic. Rates are
// probabilities in [0,1] applied per outgoing datagram.
type Impairment struct {
	DropRate      float64
	CorruptRate   float64
	DuplicateRate float64
	// RateBytesPerSec delays each received datagram in proportion to its
	// size. Zero disables the limit.
	RateBytesPerSec int
	// Seed makes impairment decisions reproducible. Zero seeds from the clock.
	Seed int64
}

func (i Impairment) Validate() error {
	for name, p := range map[string]float64{
		"drop_rate":      i.DropRate,
		"corrupt_rate":   i.CorruptRate,
		"duplicate_rate": i.DuplicateRate,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("channel: %s must be within [0,1], got %v", name, p)
		}
	}
	if i.RateBytesPerSec < 0 {
		return fmt.Errorf("channel: rate_bytes_per_sec must be >= 0, got %d", i.RateBytesPerSec)
	}
	return nil
}

// Enabled reports whether any impairment is configured.
func (i Impairment) Enabled() bool {
	return i.DropRate > 0 || i.CorruptRate > 0 || i.DuplicateRate > 0 || i.RateBytesPerSec > 0
}

// UnreliableConn wraps a Conn and drops, corrupts, duplicates and
// rate-limits datagrams.
type UnreliableConn struct {
	inner   Conn
	imp     Impairment
	limiter *rate.Limiter

	recvMu sync.Mutex
	held   *heldDatagram

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Conn = (*UnreliableConn)(nil)

// heldDatagram is a received datagram waiting for its rate-limit slot.
type heldDatagram struct {
	b    []byte
	addr net.Addr
	at   time.Time
}

func Unreliable(inner Conn, imp Impairment) *UnreliableConn {
	seed := imp.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := &UnreliableConn{
		inner: inner,
		imp:   imp,
		rng:   rand.New(rand.NewSource(seed)),
	}
	if imp.RateBytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(imp.RateBytesPerSec), MaxDatagram)
		// Start with an empty bucket so the first datagram is delayed too.
		c.limiter.AllowN(time.Now(), MaxDatagram)
	}
	return c
}

func (c *UnreliableConn) SendTo(ctx context.Context, b []byte, addr net.Addr) error {
	if c.roll(c.imp.DropRate) {
		return nil
	}
	out := b
	if c.roll(c.imp.CorruptRate) && len(b) > 0 {
		out = make([]byte, len(b))
		copy(out, b)
		c.mu.Lock()
		idx := c.rng.Intn(len(out))
		out[idx] ^= byte(1 + c.rng.Intn(255))
		c.mu.Unlock()
	}
	if err := c.inner.SendTo(ctx, out, addr); err != nil {
		return err
	}
	if c.roll(c.imp.DuplicateRate) {
		return c.inner.SendTo(ctx, out, addr)
	}
	return nil
}

// ReceiveFrom delivers the next datagram once the rate limit allows it. A
// datagram still waiting when ctx ends is kept and delivered by a later call.
func (c *UnreliableConn) ReceiveFrom(ctx context.Context, max int) ([]byte, net.Addr, error) {
	if c.limiter == nil {
		return c.inner.ReceiveFrom(ctx, max)
	}
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.held == nil {
		b, addr, err := c.inner.ReceiveFrom(ctx, max)
		if err != nil {
			return nil, nil, err
		}
		now := time.Now()
		at := now
		if len(b) > 0 {
			r := c.limiter.ReserveN(now, len(b))
			if !r.OK() {
				return nil, nil, fmt.Errorf("channel: %d bytes exceed rate burst", len(b))
			}
			at = now.Add(r.DelayFrom(now))
		}
		c.held = &heldDatagram{b: b, addr: addr, at: at}
	}
	if wait := time.Until(c.held.at); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-timer.C:
		}
	}
	d := c.held
	c.held = nil
	b := d.b
	if max > 0 && len(b) > max {
		b = b[:max]
	}
	return b, d.addr, nil
}

func (c *UnreliableConn) LocalAddr() net.Addr {
	return c.inner.LocalAddr()
}

func (c *UnreliableConn) Close() error {
	return c.inner.Close()
}

func (c *UnreliableConn) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < p
}
