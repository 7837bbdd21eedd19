package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
)

const memInboxSize = 256

// MemAddr is an address on a Network.
type MemAddr string

func (a MemAddr) Network() string { return "mem" }
func (a MemAddr) String() string  { return string(a) }

type datagram struct {
	from MemAddr
	data []byte
}

// Network is an in-process datagram fabric. Delivery to an unbound address
// or to a full inbox drops the datagram, like UDP.
type Network struct {
	mu        sync.Mutex
	endpoints map[MemAddr]*MemConn
	nextPort  int
}

func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[MemAddr]*MemConn),
		nextPort:  40000,
	}
}

// Listen binds addr. An empty addr allocates "mem:<port>".
func (n *Network) Listen(addr string) (*MemConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if addr == "" {
		for {
			n.nextPort++
			candidate := MemAddr(fmt.Sprintf("mem:%d", n.nextPort))
			if _, taken := n.endpoints[candidate]; !taken {
				addr = string(candidate)
				break
			}
		}
	}
	key := MemAddr(addr)
	if _, taken := n.endpoints[key]; taken {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	c := &MemConn{
		net:   n,
		addr:  key,
		inbox: make(chan datagram, memInboxSize),
		done:  make(chan struct{}),
	}
	n.endpoints[key] = c
	return c, nil
}

func (n *Network) deliver(from MemAddr, to net.Addr, b []byte) {
	n.mu.Lock()
	dst, ok := n.endpoints[MemAddr(to.String())]
	n.mu.Unlock()
	if !ok {
		return
	}
	data := make([]byte, len(b))
	copy(data, b)
	select {
	case dst.inbox <- datagram{from: from, data: data}:
	case <-dst.done:
	default:
	}
}

func (n *Network) unbind(addr MemAddr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, addr)
}

// MemConn is one bound endpoint on a Network.
type MemConn struct {
	net   *Network
	addr  MemAddr
	inbox chan datagram

	closeOnce sync.Once
	done      chan struct{}
}

var _ Conn = (*MemConn)(nil)

func (c *MemConn) SendTo(ctx context.Context, b []byte, addr net.Addr) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b) > MaxDatagram {
		return ErrDatagramTooLarge
	}
	c.net.deliver(c.addr, addr, b)
	return nil
}

func (c *MemConn) ReceiveFrom(ctx context.Context, max int) ([]byte, net.Addr, error) {
	select {
	case <-c.done:
		return nil, nil, ErrClosed
	default:
	}
	select {
	case dg := <-c.inbox:
		data := dg.data
		if max > 0 && len(data) > max {
			data = data[:max]
		}
		return data, dg.from, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-c.done:
		return nil, nil, ErrClosed
	}
}

func (c *MemConn) LocalAddr() net.Addr {
	return c.addr
}

func (c *MemConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.net.unbind(c.addr)
	})
	return nil
}
