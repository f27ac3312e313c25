package internal

import (
	"encoding/binary"
)

// DeltaList stores a non-decreasing sequence of uint64 values as uvarint-encoded deltas.
type DeltaList struct {
	buf                  []byte
	lastVal, numElements uint64
}

// U64It yields values until its second result is false.
type U64It func() (uint64, bool)

func NewDeltaList(estimatedCap int) *DeltaList {
	return &DeltaList{
		buf: make([]byte, 0, estimatedCap),
	}
}

// Add appends x, which must not be smaller than the last value added.
func (s *DeltaList) Add(x uint64) {
	delta := x - s.lastVal
	s.buf = binary.AppendUvarint(s.buf, delta)
	s.lastVal = x
	s.numElements++
}

func (s *DeltaList) Len() uint64 {
	return s.numElements
}

func (s *DeltaList) SizeInBytes() int {
	return len(s.buf)
}

// Bytes returns the encoded form. The slice aliases the list.
func (s *DeltaList) Bytes() []byte {
	return s.buf
}

// Returns a function that can be called repeatedly to yield values from the list.
func (s *DeltaList) Iterator() U64It {
	buf := s.buf
	var lastDecoded uint64
	return func() (uint64, bool) {
		delta, n := binary.Uvarint(buf)
		if n <= 0 {
			return 0, false
		}
		buf = buf[n:]
		lastDecoded += delta
		return lastDecoded, true
	}
}

// ParseStrictDeltaList decodes exactly count strictly ascending values from buf. Trailing bytes,
// repeated values, overflowing deltas and short input are all format errors. The result owns a
// copy of buf.
func ParseStrictDeltaList(buf []byte, count uint64) (*DeltaList, error) {
	rest := buf
	var last uint64
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, Formatf("delta list truncated after %d of %d values", i, count)
		}
		rest = rest[n:]
		if i > 0 && delta == 0 {
			return nil, Formatf("delta list value %d repeats its predecessor", i)
		}
		next := last + delta
		if next < last {
			return nil, Formatf("delta list value %d overflows", i)
		}
		last = next
	}
	if len(rest) != 0 {
		return nil, Formatf("delta list has %d trailing bytes", len(rest))
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return &DeltaList{buf: owned, lastVal: last, numElements: count}, nil
}
