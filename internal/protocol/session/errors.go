package session

import "errors"

var (
	ErrHandshakeFailed  = errors.New("session: handshake failed")
	ErrSequenceMismatch = errors.New("session: acknowledgment does not match sequence")
	ErrPeerClosed       = errors.New("session: peer closed the connection")
	ErrTimeout          = errors.New("session: timed out waiting for peer")
	ErrConnClosed       = errors.New("session: connection closed")
	ErrInvalidConfig    = errors.New("session: invalid config")
)
