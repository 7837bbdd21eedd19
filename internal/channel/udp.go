package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// UDPConn binds a Conn to a UDP socket.
type UDPConn struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	closed bool
}

var _ Conn = (*UDPConn)(nil)

// ListenUDP binds addr ("host:port", port 0 picks a free port).
func ListenUDP(addr string) (*UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("channel: bind %s: %w", addr, err)
	}
	return &UDPConn{conn: conn}, nil
}

func ResolveUDP(addr string) (net.Addr, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %s: %w", addr, err)
	}
	return raddr, nil
}

func (c *UDPConn) SendTo(ctx context.Context, b []byte, addr net.Addr) error {
	if c.isClosed() {
		return ErrClosed
	}
	if len(b) > MaxDatagram {
		return ErrDatagramTooLarge
	}
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return fmt.Errorf("channel: resolve %s: %w", addr, err)
		}
		udpAddr = resolved
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.WriteToUDP(b, udpAddr)
	return c.mapErr(ctx, err)
}

func (c *UDPConn) ReceiveFrom(ctx context.Context, max int) ([]byte, net.Addr, error) {
	if c.isClosed() {
		return nil, nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if max <= 0 || max > MaxDatagram {
		max = MaxDatagram
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, err
		}
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	// Unblock the read when ctx is cancelled without a deadline. The callback
	// must have finished before we return, or it can clobber the deadline of
	// the next read.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	buf := make([]byte, max)
	n, addr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, c.mapErr(ctx, err)
	}
	return buf[:n], addr, nil
}

func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *UDPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *UDPConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *UDPConn) mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if _, ok := ctx.Deadline(); ok {
			return context.DeadlineExceeded
		}
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
