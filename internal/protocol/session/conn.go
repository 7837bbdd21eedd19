package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rdtctl/internal/channel"
	"github.com/danmuck/rdtctl/internal/observability"
	"github.com/danmuck/rdtctl/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conn is one reliable connection to a single peer over a datagram channel.
// Send and Receive are serialized; Close may be called from any goroutine.
type Conn struct {
	id   string
	ch   channel.Conn
	cfg  Config
	role Role
	peer net.Addr
	log  zerolog.Logger
	rng  *rand.Rand
	seq  *SeqGen

	state atomic.Int32
	stats counters

	mu sync.Mutex
	// peerNonce is the listener's handshake nonce, kept by the initiator to
	// re-acknowledge duplicate SYN_ACKs.
	peerNonce     uint8
	lastDelivered uint16
	haveDelivered bool
	pending       [][]byte

	closeOnce sync.Once
	closeErr  error
}

func newConn(ch channel.Conn, cfg Config, role Role) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:   id,
		ch:   ch,
		cfg:  cfg,
		role: role,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		seq:  NewSeqGen(0),
		log: log.With().
			Str("conn", id).
			Str("role", role.String()).
			Str("local", ch.LocalAddr().String()).
			Logger(),
	}
	c.setState(StateClosed)
	return c
}

func (c *Conn) ID() string           { return c.id }
func (c *Conn) Role() Role           { return c.role }
func (c *Conn) State() State         { return State(c.state.Load()) }
func (c *Conn) LocalAddr() net.Addr  { return c.ch.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.peer }
func (c *Conn) Stats() Stats         { return c.stats.snapshot() }

// Close tears the connection down and releases the channel. An established
// initiator first sends one FIN; it is not acknowledged or retransmitted.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		if c.role == RoleInitiator && prev == StateEstablished {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
			if err := c.writeFrame(ctx, frame.NewFin(c.seq.Next())); err != nil {
				c.log.Warn().Err(err).Msg("fin send failed")
			}
			cancel()
		}
		c.closeErr = c.ch.Close()
		c.log.Info().Str("prev_state", prev.String()).Msg("connection closed")
	})
	return c.closeErr
}

func (c *Conn) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state")
	}
}

func (c *Conn) writeFrame(ctx context.Context, f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := c.ch.SendTo(wctx, b, c.peer); err != nil {
		return fmt.Errorf("session: send %s: %w", f.Kind(), err)
	}
	kind := f.Kind().String()
	c.stats.framesSent.Add(1)
	c.stats.bytesSent.Add(uint64(len(b)))
	observability.RecordFrameSent(kind)
	c.log.Trace().Str("kind", kind).Uint16("seq", f.Seq).Uint16("seqack", f.SeqAck).Int("len", len(f.Payload)).Msg("frame out")
	return nil
}

// readFrame returns the next verified frame. Corrupt frames and frames from
// anyone but the peer (once it is known) are dropped. A zero deadline waits
// until ctx is done; reaching the deadline yields ErrTimeout.
func (c *Conn) readFrame(ctx context.Context, deadline time.Time, maxPayload int) (frame.Frame, net.Addr, error) {
	rctx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		rctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	for {
		b, from, err := c.ch.ReceiveFrom(rctx, frame.HeaderLen+maxPayload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return frame.Frame{}, nil, ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return frame.Frame{}, nil, ErrTimeout
			}
			return frame.Frame{}, nil, err
		}
		if c.peer != nil && !channel.SameAddr(from, c.peer) {
			c.drop("foreign_peer", from, nil)
			continue
		}
		f, err := frame.Parse(b)
		if err != nil {
			c.drop(dropReason(err), from, err)
			continue
		}
		kind := f.Kind().String()
		c.stats.framesReceived.Add(1)
		c.stats.bytesReceived.Add(uint64(len(b)))
		observability.RecordFrameReceived(kind)
		c.log.Trace().Str("kind", kind).Uint16("seq", f.Seq).Uint16("seqack", f.SeqAck).Int("len", len(f.Payload)).Msg("frame in")
		return f, from, nil
	}
}

func (c *Conn) drop(reason string, from net.Addr, err error) {
	c.stats.dropped.Add(1)
	observability.RecordFrameDropped(reason)
	ev := c.log.Debug().Str("reason", reason)
	if from != nil {
		ev = ev.Str("from", from.String())
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("frame dropped")
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, frame.ErrLengthMismatch):
		return "length"
	default:
		return "malformed"
	}
}

// retransmit counts a retry and sleeps the backoff delay for attempt.
func (c *Conn) retransmit(ctx context.Context, phase string, attempt int) error {
	c.stats.retransmissions.Add(1)
	observability.RecordRetransmission(phase)
	c.log.Debug().Str("phase", phase).Int("attempt", attempt).Msg("retransmitting")
	return sleepBackoff(ctx, c.cfg.Backoff, attempt, c.rng)
}

func (c *Conn) nonce() uint8 {
	return uint8(1 + c.rng.Intn(frame.MaxNonce))
}
