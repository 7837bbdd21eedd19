package frame

// Kind classifies a frame by its header. The wire layout has no kind field,
// so the kind is derived from which header fields are set.
type Kind uint8

const (
	KindData Kind = iota
	KindAck
	KindSyn
	KindSynAck
	KindHandshakeAck
	KindFin
)

// Handshake nonces stay in 1..MaxNonce: zero is reserved for "not a
// handshake frame" and nonce+1 must still fit in one digit.
const MaxNonce = MaxFlag - 1

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAck:
		return "ack"
	case KindSyn:
		return "syn"
	case KindSynAck:
		return "syn_ack"
	case KindHandshakeAck:
		return "handshake_ack"
	case KindFin:
		return "fin"
	default:
		return "unknown"
	}
}

// Kind reports the frame kind. Any nonzero fin marks a FIN, and so does an
// all-zero header with no payload: that is what peers without the fin flag
// send on close.
func (f Frame) Kind() Kind {
	switch {
	case f.Fin != 0:
		return KindFin
	case f.Syn == 0 && f.Ack == 0 && f.Seq == 0 && f.SeqAck == 0 && len(f.Payload) == 0:
		return KindFin
	case f.Syn != 0 && f.Ack == 0:
		return KindSyn
	case f.Syn != 0:
		return KindSynAck
	case f.Ack != 0:
		return KindHandshakeAck
	case f.SeqAck != 0:
		return KindAck
	default:
		return KindData
	}
}

func NewSyn(nonce uint8) Frame {
	return Frame{Syn: nonce}
}

// NewSynAck answers a SYN carrying peerNonce with the local nonce.
func NewSynAck(nonce, peerNonce uint8) Frame {
	return Frame{Syn: nonce, Ack: peerNonce + 1}
}

func NewHandshakeAck(peerNonce uint8) Frame {
	return Frame{Ack: peerNonce + 1}
}

func NewData(seq uint16, payload []byte) Frame {
	return Frame{Seq: seq, Payload: payload}
}

// NewAck acknowledges the data frame carrying seq.
func NewAck(seq uint16) Frame {
	return Frame{Seq: seq, SeqAck: seq + 1}
}

func NewFin(seq uint16) Frame {
	return Frame{Fin: 1, Seq: seq}
}
