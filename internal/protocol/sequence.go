package protocol

import "sync/atomic"

// SeqAfter reports whether a is strictly after b in 16-bit serial number
// arithmetic, so ordering survives the wrap from 0xFFFF to 0x0000.
func SeqAfter(a, b uint16) bool {
	return int16(a-b) > 0
}

// Sequencer hands out monotonically increasing sequence numbers. It is safe
// for concurrent use; the zero value starts at 1.
type Sequencer struct {
	next atomic.Uint32
}

// NewSequencer creates a sequencer whose first number is start.
func NewSequencer(start uint16) *Sequencer {
	s := &Sequencer{}
	s.next.Store(uint32(start) - 1)
	return s
}

// Next returns the next sequence number, wrapping modulo 2^16.
func (s *Sequencer) Next() uint16 {
	return uint16(s.next.Add(1))
}

// Last returns the most recently issued number, or start-1 before the
// first call to Next.
func (s *Sequencer) Last() uint16 {
	return uint16(s.next.Load())
}
