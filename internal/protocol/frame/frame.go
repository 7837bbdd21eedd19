package frame

import (
	"errors"
	"fmt"
)

// Header field widths in ASCII decimal digits.
const (
	synWidth      = 1
	finWidth      = 1
	ackWidth      = 1
	seqWidth      = 4
	seqAckWidth   = 4
	lenWidth      = 4
	checksumWidth = 2

	HeaderLen = synWidth + finWidth + ackWidth + seqWidth + seqAckWidth + lenWidth + checksumWidth

	MaxFlag     = 9
	MaxSeq      = 9999
	MaxPayload  = 9999
	MaxChecksum = 99
	MaxDatagram = HeaderLen + MaxPayload
)

var (
	ErrMalformed        = errors.New("frame: malformed header")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	ErrLengthMismatch   = errors.New("frame: length field does not match payload")
	ErrFieldRange       = errors.New("frame: header field out of range")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
)

// Frame is one datagram on the wire.
type Frame struct {
	Syn      uint8
	Fin      uint8
	Ack      uint8
	Seq      uint16
	SeqAck   uint16
	Len      uint16
	Checksum uint8
	Payload  []byte
}

// Encode serializes f. Len and Checksum are recomputed from the payload and
// the other header fields; the values carried in f are ignored.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	if err := checkRange(f); err != nil {
		return nil, err
	}
	f.Len = uint16(len(f.Payload))
	f.Checksum = Checksum(f)

	buf := make([]byte, HeaderLen+len(f.Payload))
	off := 0
	off = putDecimal(buf, off, synWidth, int(f.Syn))
	off = putDecimal(buf, off, finWidth, int(f.Fin))
	off = putDecimal(buf, off, ackWidth, int(f.Ack))
	off = putDecimal(buf, off, seqWidth, int(f.Seq))
	off = putDecimal(buf, off, seqAckWidth, int(f.SeqAck))
	off = putDecimal(buf, off, lenWidth, int(f.Len))
	off = putDecimal(buf, off, checksumWidth, int(f.Checksum))
	copy(buf[off:], f.Payload)
	return buf, nil
}

// Decode parses a datagram without checking its checksum, so callers can tell
// an unparseable datagram from a corrupted one. See Verify and Parse.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: short datagram (%d bytes)", ErrMalformed, len(b))
	}
	var (
		f   Frame
		off int
		v   int
		err error
	)
	if v, off, err = readDecimal(b, off, synWidth); err != nil {
		return Frame{}, err
	}
	f.Syn = uint8(v)
	if v, off, err = readDecimal(b, off, finWidth); err != nil {
		return Frame{}, err
	}
	f.Fin = uint8(v)
	if v, off, err = readDecimal(b, off, ackWidth); err != nil {
		return Frame{}, err
	}
	f.Ack = uint8(v)
	if v, off, err = readDecimal(b, off, seqWidth); err != nil {
		return Frame{}, err
	}
	f.Seq = uint16(v)
	if v, off, err = readDecimal(b, off, seqAckWidth); err != nil {
		return Frame{}, err
	}
	f.SeqAck = uint16(v)
	if v, off, err = readDecimal(b, off, lenWidth); err != nil {
		return Frame{}, err
	}
	f.Len = uint16(v)
	if v, off, err = readDecimal(b, off, checksumWidth); err != nil {
		return Frame{}, err
	}
	f.Checksum = uint8(v)

	f.Payload = make([]byte, len(b)-off)
	copy(f.Payload, b[off:])
	return f, nil
}

// Verify reports whether a decoded frame can be trusted.
func Verify(f Frame) error {
	if got := Checksum(f); got != f.Checksum {
		return fmt.Errorf("%w: got=%02d want=%02d", ErrChecksumMismatch, f.Checksum, got)
	}
	if int(f.Len) != len(f.Payload) {
		return fmt.Errorf("%w: len=%d payload=%d", ErrLengthMismatch, f.Len, len(f.Payload))
	}
	return nil
}

// Parse decodes and verifies b.
func Parse(b []byte) (Frame, error) {
	f, err := Decode(b)
	if err != nil {
		return Frame{}, err
	}
	if err := Verify(f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Checksum computes the additive header/payload check value in 0..99.
// It is order-insensitive over payload bytes and only catches accidental damage.
func Checksum(f Frame) uint8 {
	sum := 11*int(f.Syn) +
		13*int(f.Fin) +
		17*int(f.Ack) +
		19*int(f.Seq) +
		23*int(f.SeqAck) +
		29*int(f.Len)
	payloadSum := 0
	for _, b := range f.Payload {
		payloadSum += int(b)
	}
	sum += 31 * payloadSum
	return uint8(sum % 100)
}

func checkRange(f Frame) error {
	switch {
	case f.Syn > MaxFlag:
		return fmt.Errorf("%w: syn=%d", ErrFieldRange, f.Syn)
	case f.Fin > MaxFlag:
		return fmt.Errorf("%w: fin=%d", ErrFieldRange, f.Fin)
	case f.Ack > MaxFlag:
		return fmt.Errorf("%w: ack=%d", ErrFieldRange, f.Ack)
	case f.Seq > MaxSeq:
		return fmt.Errorf("%w: seq=%d", ErrFieldRange, f.Seq)
	case f.SeqAck > MaxSeq:
		return fmt.Errorf("%w: seqack=%d", ErrFieldRange, f.SeqAck)
	}
	return nil
}

func putDecimal(buf []byte, off, width, v int) int {
	for i := off + width - 1; i >= off; i-- {
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return off + width
}

func readDecimal(b []byte, off, width int) (int, int, error) {
	v := 0
	for i := off; i < off+width; i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, off, fmt.Errorf("%w: non-digit 0x%02x at offset %d", ErrMalformed, c, i)
		}
		v = v*10 + int(c-'0')
	}
	return v, off + width, nil
}
