package session

type Role int

const (
	RoleListener Role = iota
	RoleInitiator
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "listener"
}

type State int32

const (
	StateClosed State = iota
	StateSynSent
	StateSynReceived
	StateEstablished
	StateClosedByPeer
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosedByPeer:
		return "CLOSED_BY_PEER"
	default:
		return "UNKNOWN"
	}
}
