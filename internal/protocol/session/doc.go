// Package session owns the RDT connection engine.
//
// Ownership boundary:
// - passive (Accept) and active (Connect) handshakes
// - stop-and-wait Send / Receive with acknowledgment and sequence tracking
// - retransmission, timeout and backoff policy
// - teardown
//
// Frames are built and verified by the frame package; datagrams travel over a
// channel.Conn. One Conn serves exactly one peer.
package session
