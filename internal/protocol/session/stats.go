package session

import "sync/atomic"

// Stats is a point-in-time copy of a connection's counters.
type Stats struct {
	FramesSent      uint64
	FramesReceived  uint64
	BytesSent       uint64
	BytesReceived   uint64
	Retransmissions uint64
	Dropped         uint64
	Duplicates      uint64
}

type counters struct {
	framesSent      atomic.Uint64
	framesReceived  atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	retransmissions atomic.Uint64
	dropped         atomic.Uint64
	duplicates      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesSent:      c.framesSent.Load(),
		FramesReceived:  c.framesReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		Retransmissions: c.retransmissions.Load(),
		Dropped:         c.dropped.Load(),
		Duplicates:      c.duplicates.Load(),
	}
}
