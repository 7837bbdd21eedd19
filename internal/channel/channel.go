// Package channel provides the unreliable datagram transports the RDT engine
// runs on.
//
// Ownership boundary:
// - bind / send_to / receive_from over UDP
// - in-memory datagram network for tests and local demos
// - impairment (loss, corruption, duplication, rate limit) wrappers
//
// A channel never fragments a datagram and never guarantees delivery.
package channel

import (
	"context"
	"errors"
	"net"
)

var (
	ErrClosed           = errors.New("channel: closed")
	ErrDatagramTooLarge = errors.New("channel: datagram exceeds maximum size")
	ErrAddressInUse     = errors.New("channel: address already bound")
)

// MaxDatagram is the largest payload a UDP datagram can carry over IPv4.
const MaxDatagram = 65507

// Conn is a bound, unconnected datagram endpoint.
type Conn interface {
	// SendTo transmits one datagram. Delivery is not guaranteed.
	SendTo(ctx context.Context, b []byte, addr net.Addr) error
	// ReceiveFrom blocks for one datagram of at most max bytes; longer
	// datagrams are truncated. It honors ctx cancellation and deadline.
	ReceiveFrom(ctx context.Context, max int) ([]byte, net.Addr, error)
	LocalAddr() net.Addr
	Close() error
}

// SameAddr compares datagram addresses by their string form.
func SameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Network() == b.Network() && a.String() == b.String()
}
