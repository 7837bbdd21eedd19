package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/rdtctl/internal/channel"
	"github.com/danmuck/rdtctl/internal/observability"
	"github.com/danmuck/rdtctl/internal/protocol/frame"
)

// handshakeBuf bounds handshake reads; a DATA frame arriving in place of the
// final ACK still has to fit.
func (c *Conn) handshakeBuf() int {
	return c.cfg.MaxPayload
}

// Accept waits on ch for a SYN and completes the passive handshake with
// whoever sent it, returning the connection and the peer address. On failure
// ch is left open for the caller.
func Accept(ctx context.Context, ch channel.Conn, cfg Config) (*Conn, net.Addr, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	c := newConn(ch, cfg, RoleListener)
	if err := c.accept(ctx); err != nil {
		c.setState(StateClosed)
		observability.RecordHandshake(c.role.String(), false)
		c.log.Warn().Err(err).Msg("handshake failed")
		return nil, nil, err
	}
	observability.RecordHandshake(c.role.String(), true)
	c.log.Info().Msg("connection established")
	return c, c.peer, nil
}

// ListenAndAccept binds addr over UDP and accepts one connection.
func ListenAndAccept(ctx context.Context, addr string, cfg Config) (*Conn, net.Addr, error) {
	ch, err := channel.ListenUDP(addr)
	if err != nil {
		return nil, nil, err
	}
	c, peer, err := Accept(ctx, ch, cfg)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return c, peer, nil
}

func (c *Conn) accept(ctx context.Context) error {
	var deadline time.Time
	if c.cfg.AcceptTimeout > 0 {
		deadline = time.Now().Add(c.cfg.AcceptTimeout)
	}
	var peerNonce uint8
	for {
		f, from, err := c.readFrame(ctx, deadline, c.handshakeBuf())
		if err != nil {
			return fmt.Errorf("%w: waiting for syn: %w", ErrHandshakeFailed, err)
		}
		if f.Kind() != frame.KindSyn {
			c.drop("unexpected_"+f.Kind().String(), from, nil)
			continue
		}
		c.peer = from
		peerNonce = f.Syn
		break
	}
	c.setState(StateSynReceived)
	c.log = c.log.With().Str("peer", c.peer.String()).Logger()

	nonce := c.nonce()
	for attempt := 1; ; attempt++ {
		if err := c.writeFrame(ctx, frame.NewSynAck(nonce, peerNonce)); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		err := c.awaitHandshakeAck(ctx, nonce, &peerNonce)
		if err == nil {
			c.setState(StateEstablished)
			return nil
		}
		if !errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		if attempt > c.cfg.MaxRetries {
			return fmt.Errorf("%w: no handshake ack after %d attempts: %w", ErrHandshakeFailed, attempt, ErrTimeout)
		}
		if err := c.retransmit(ctx, "handshake", attempt); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
	}
}

// awaitHandshakeAck waits one HandshakeTimeout for the initiator's final ACK
// (ack == nonce+1). A DATA frame completes the handshake too and is queued
// for Receive. A repeated SYN is answered with the SYN_ACK right away without
// using up an attempt.
func (c *Conn) awaitHandshakeAck(ctx context.Context, nonce uint8, peerNonce *uint8) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	for {
		f, _, err := c.readFrame(ctx, deadline, c.handshakeBuf())
		if err != nil {
			return err
		}
		switch f.Kind() {
		case frame.KindHandshakeAck, frame.KindSynAck:
			if f.Ack != nonce+1 {
				return fmt.Errorf("handshake ack=%d want=%d", f.Ack, nonce+1)
			}
			return nil
		case frame.KindSyn:
			*peerNonce = f.Syn
			c.stats.retransmissions.Add(1)
			observability.RecordRetransmission("handshake")
			if err := c.writeFrame(ctx, frame.NewSynAck(nonce, *peerNonce)); err != nil {
				return err
			}
		case frame.KindData:
			return c.acceptData(ctx, f)
		case frame.KindFin:
			return ErrPeerClosed
		default:
			c.drop("unexpected_"+f.Kind().String(), nil, nil)
		}
	}
}

// Connect performs the active handshake with peer over ch. On failure ch is
// left open for the caller.
func Connect(ctx context.Context, ch channel.Conn, peer net.Addr, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, fmt.Errorf("%w: nil peer address", ErrHandshakeFailed)
	}
	c := newConn(ch, cfg, RoleInitiator)
	c.peer = peer
	c.log = c.log.With().Str("peer", peer.String()).Logger()
	if err := c.connect(ctx); err != nil {
		c.setState(StateClosed)
		observability.RecordHandshake(c.role.String(), false)
		c.log.Warn().Err(err).Msg("handshake failed")
		return nil, err
	}
	observability.RecordHandshake(c.role.String(), true)
	c.log.Info().Msg("connection established")
	return c, nil
}

// Dial binds an ephemeral UDP port and connects to addr.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	peer, err := channel.ResolveUDP(addr)
	if err != nil {
		return nil, err
	}
	ch, err := channel.ListenUDP(":0")
	if err != nil {
		return nil, err
	}
	c, err := Connect(ctx, ch, peer, cfg)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	c.setState(StateSynSent)
	nonce := c.nonce()
	for attempt := 1; ; attempt++ {
		if err := c.writeFrame(ctx, frame.NewSyn(nonce)); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		reply, err := c.awaitSynAck(ctx, nonce)
		if err == nil {
			c.peerNonce = reply.Syn
			if err := c.writeFrame(ctx, frame.NewHandshakeAck(reply.Syn)); err != nil {
				return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
			}
			c.setState(StateEstablished)
			return nil
		}
		if !errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		if attempt > c.cfg.MaxRetries {
			return fmt.Errorf("%w: no syn_ack after %d attempts: %w", ErrHandshakeFailed, attempt, ErrTimeout)
		}
		if err := c.retransmit(ctx, "handshake", attempt); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
	}
}

func (c *Conn) awaitSynAck(ctx context.Context, nonce uint8) (frame.Frame, error) {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	for {
		f, _, err := c.readFrame(ctx, deadline, c.handshakeBuf())
		if err != nil {
			return frame.Frame{}, err
		}
		switch f.Kind() {
		case frame.KindSynAck:
			if f.Ack != nonce+1 {
				return frame.Frame{}, fmt.Errorf("syn_ack ack=%d want=%d", f.Ack, nonce+1)
			}
			return f, nil
		case frame.KindFin:
			return frame.Frame{}, ErrPeerClosed
		default:
			c.drop("unexpected_"+f.Kind().String(), nil, nil)
		}
	}
}

// reackHandshake answers a duplicate SYN_ACK after the initiator is
// established; the listener is still waiting for it.
func (c *Conn) reackHandshake(ctx context.Context, f frame.Frame) error {
	if c.role != RoleInitiator || f.Syn != c.peerNonce {
		c.drop("unexpected_"+f.Kind().String(), nil, nil)
		return nil
	}
	c.stats.duplicates.Add(1)
	return c.writeFrame(ctx, frame.NewHandshakeAck(c.peerNonce))
}
