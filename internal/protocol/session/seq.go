package session

import (
	"sync/atomic"

	"github.com/danmuck/rdtctl/internal/protocol/frame"
)

// MaxSeqValue is the largest data sequence number; seq+1 must still fit the
// four digit seqack field.
const MaxSeqValue = frame.MaxSeq - 1

// SeqGen is a per-connection sequence counter. It wraps from MaxSeqValue back
// to 1; zero is never issued.
type SeqGen struct {
	val atomic.Uint32
}

// NewSeqGen returns a counter whose first Next() is start+1.
func NewSeqGen(start uint16) *SeqGen {
	s := &SeqGen{}
	s.val.Store(uint32(start) % (MaxSeqValue + 1))
	return s
}

func (s *SeqGen) Next() uint16 {
	for {
		cur := s.val.Load()
		next := cur + 1
		if next > MaxSeqValue {
			next = 1
		}
		if s.val.CompareAndSwap(cur, next) {
			return uint16(next)
		}
	}
}
