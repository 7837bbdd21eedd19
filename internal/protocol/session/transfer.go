package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/rdtctl/internal/observability"
	"github.com/danmuck/rdtctl/internal/protocol/frame"
)

// Send transmits one message and blocks until the peer acknowledges it.
// The frame is retransmitted on every ack timeout, up to MaxRetries times.
// DATA arriving from the peer meanwhile is acknowledged and queued for
// Receive.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}
	if len(payload) > c.cfg.MaxPayload {
		return fmt.Errorf("%w: %d bytes, limit %d", frame.ErrPayloadTooLarge, len(payload), c.cfg.MaxPayload)
	}

	seq := c.seq.Next()
	data := frame.NewData(seq, payload)
	start := time.Now()
	mismatched := false
	for attempt := 1; ; attempt++ {
		if err := c.writeFrame(ctx, data); err != nil {
			return c.closedOr(err)
		}
		err := c.awaitDataAck(ctx, seq, &mismatched)
		if err == nil {
			observability.RecordSend(time.Since(start))
			c.log.Debug().Uint16("seq", seq).Int("len", len(payload)).Int("attempts", attempt).Msg("message acknowledged")
			return nil
		}
		if !errors.Is(err, ErrTimeout) {
			return c.closedOr(err)
		}
		if attempt > c.cfg.MaxRetries {
			c.log.Warn().Uint16("seq", seq).Int("attempts", attempt).Bool("mismatched_ack", mismatched).Msg("send gave up")
			if mismatched {
				return fmt.Errorf("%w: seq=%d", ErrSequenceMismatch, seq)
			}
			return fmt.Errorf("session: send seq=%d: %w", seq, ErrTimeout)
		}
		if err := c.retransmit(ctx, "data", attempt); err != nil {
			return err
		}
	}
}

// awaitDataAck waits one AckTimeout for the ACK of seq. ACKs for any other
// sequence are dropped and recorded in mismatched.
func (c *Conn) awaitDataAck(ctx context.Context, seq uint16, mismatched *bool) error {
	deadline := time.Now().Add(c.cfg.AckTimeout)
	for {
		f, _, err := c.readFrame(ctx, deadline, c.cfg.MaxPayload)
		if err != nil {
			return err
		}
		switch f.Kind() {
		case frame.KindAck:
			if f.SeqAck == seq+1 {
				return nil
			}
			*mismatched = true
			c.drop("stale_ack", nil, nil)
		case frame.KindData:
			if err := c.acceptData(ctx, f); err != nil {
				return err
			}
		case frame.KindSynAck:
			if err := c.reackHandshake(ctx, f); err != nil {
				return err
			}
		case frame.KindFin:
			c.peerClosed()
			return ErrPeerClosed
		default:
			c.drop("unexpected_"+f.Kind().String(), nil, nil)
		}
	}
}

// Receive blocks for the next message and returns its payload. maxSize
// bounds the accepted payload (<= 0 uses ReceiveBufferSize); larger frames
// fail verification and are dropped. Receive returns io.EOF once the peer
// has closed.
func (c *Conn) Receive(ctx context.Context, maxSize int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		return msg, nil
	}
	switch c.State() {
	case StateClosedByPeer:
		return nil, io.EOF
	case StateEstablished:
	default:
		return nil, ErrConnClosed
	}
	if maxSize <= 0 {
		maxSize = c.cfg.ReceiveBufferSize
	}
	var deadline time.Time
	if c.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(c.cfg.ReadTimeout)
	}
	for {
		f, _, err := c.readFrame(ctx, deadline, maxSize)
		if err != nil {
			return nil, c.closedOr(err)
		}
		switch f.Kind() {
		case frame.KindData:
			if err := c.acceptData(ctx, f); err != nil {
				return nil, err
			}
			if len(c.pending) > 0 {
				msg := c.pending[0]
				c.pending = c.pending[1:]
				return msg, nil
			}
		case frame.KindSynAck:
			if err := c.reackHandshake(ctx, f); err != nil {
				return nil, err
			}
		case frame.KindFin:
			c.peerClosed()
			return nil, io.EOF
		default:
			c.drop("unexpected_"+f.Kind().String(), nil, nil)
		}
	}
}

// acceptData acknowledges f and queues its payload unless it repeats the
// last delivered sequence. Callers hold c.mu or own the connection
// exclusively.
func (c *Conn) acceptData(ctx context.Context, f frame.Frame) error {
	if f.Seq < frame.MaxSeq {
		if err := c.writeFrame(ctx, frame.NewAck(f.Seq)); err != nil {
			return err
		}
	} else {
		// seq+1 does not fit the seqack field; the peer will time out.
		c.log.Warn().Uint16("seq", f.Seq).Msg("cannot acknowledge seq")
	}
	if c.haveDelivered && f.Seq == c.lastDelivered {
		c.stats.duplicates.Add(1)
		c.log.Debug().Uint16("seq", f.Seq).Msg("duplicate data suppressed")
		return nil
	}
	c.haveDelivered = true
	c.lastDelivered = f.Seq
	c.pending = append(c.pending, f.Payload)
	return nil
}

func (c *Conn) peerClosed() {
	if c.state.CompareAndSwap(int32(StateEstablished), int32(StateClosedByPeer)) {
		c.log.Info().Msg("peer closed connection")
	}
}

func (c *Conn) writable() error {
	switch c.State() {
	case StateEstablished:
		return nil
	case StateClosedByPeer:
		return ErrPeerClosed
	default:
		return ErrConnClosed
	}
}

// closedOr reports ErrConnClosed for failures caused by a concurrent Close.
func (c *Conn) closedOr(err error) error {
	if c.State() == StateClosed {
		return ErrConnClosed
	}
	return err
}
