package cpc

import (
	"math/bits"
	"slices"

	"github.com/lytics/datasketches/internal"
)

const (
	MinLgK     = 4
	MaxLgK     = 26
	DefaultLgK = 11

	DefaultSeed = internal.DefaultSeed

	maxWindowOffset = 56
)

var (
	ErrConfig       = internal.ErrConfig
	ErrFormat       = internal.ErrFormat
	ErrSeedMismatch = internal.ErrSeedMismatch
	ErrAllocation   = internal.ErrAllocation

	DebugLogger = internal.DebugLogger
)

// Flavor names the phase a sketch is in, which is a function of lgK and the coupon count alone.
type Flavor uint8

const (
	Empty   Flavor = iota // no coupons
	Sparse                // every coupon sits in the pair table
	Hybrid                // window at offset 0, not yet half full
	Pinned                // window at offset 0
	Sliding               // window has moved at least once
)

func (f Flavor) String() string {
	switch f {
	case Empty:
		return "EMPTY"
	case Sparse:
		return "SPARSE"
	case Hybrid:
		return "HYBRID"
	case Pinned:
		return "PINNED"
	case Sliding:
		return "SLIDING"
	}
	return "UNKNOWN"
}

func determineFlavor(lgK int, numCoupons uint64) Flavor {
	k := uint64(1) << lgK
	switch {
	case numCoupons == 0:
		return Empty
	case numCoupons<<5 < 3*k:
		return Sparse
	case numCoupons<<1 < k:
		return Hybrid
	case numCoupons<<3 < 27*k:
		return Pinned
	}
	return Sliding
}

// determineCorrectOffset is the window offset a windowed sketch with numCoupons coupons must have.
func determineCorrectOffset(lgK int, numCoupons uint64) int {
	k := int64(1) << lgK
	tmp := int64(numCoupons)<<3 - 19*k
	if tmp < 0 {
		return 0
	}
	return int(tmp >> (lgK + 3))
}

// Sketch is a Compressed Probabilistic Counting sketch. Conceptually it is a k×64 bit matrix: an
// item sets bit col of row row, and the number of set bits is the coupon count C. Physically the
// matrix is kept as a pair table of rowCols while sparse, and later as a one-byte-per-row window
// over the eight columns where bits are about half set, plus a pair table of the surprising bits
// on either side of it (zeros to the left, ones to the right).
//
// A Sketch is not safe for concurrent use.
type Sketch struct {
	lgK      int
	seed     uint64
	seedHash uint16

	numCoupons uint64
	mergeFlag  bool // the sketch holds union output, so its HIP fields mean nothing

	firstInterestingColumn int
	table                  *pairTable
	window                 []byte // nil until the sketch leaves sparse mode
	windowOffset           int

	kxp      float64
	hipAccum float64
}

// NewSketch returns an empty sketch with 2^lgK rows that hashes items with seed.
func NewSketch(lgK int, seed uint64) (*Sketch, error) {
	if err := checkLgK(lgK); err != nil {
		return nil, err
	}
	seedHash, err := internal.ComputeSeedHash(seed)
	if err != nil {
		return nil, err
	}
	return newSketch(lgK, seed, seedHash), nil
}

func newSketch(lgK int, seed uint64, seedHash uint16) *Sketch {
	return &Sketch{
		lgK:      lgK,
		seed:     seed,
		seedHash: seedHash,
		table:    newPairTable(lgMinTableSize, 6+lgK),
		kxp:      float64(uint64(1) << lgK),
	}
}

func checkLgK(lgK int) error {
	if lgK < MinLgK || lgK > MaxLgK {
		return internal.Configf("lgK must be in [%d,%d], got %d", MinLgK, MaxLgK, lgK)
	}
	return nil
}

func checkKappa(kappa int) error {
	if kappa < 1 || kappa > 3 {
		return internal.Configf("kappa must be 1, 2 or 3, got %d", kappa)
	}
	return nil
}

func (s *Sketch) k() uint64 { return uint64(1) << s.lgK }

func (s *Sketch) LgK() int           { return s.lgK }
func (s *Sketch) Seed() uint64       { return s.seed }
func (s *Sketch) NumCoupons() uint64 { return s.numCoupons }
func (s *Sketch) IsEmpty() bool      { return s.numCoupons == 0 }
func (s *Sketch) Flavor() Flavor     { return determineFlavor(s.lgK, s.numCoupons) }

// WasMerged reports whether the sketch came out of a Union, in which case its estimate is ICON.
func (s *Sketch) WasMerged() bool { return s.mergeFlag }

// Copy returns an independent deep copy.
func (s *Sketch) Copy() *Sketch {
	out := *s
	out.table = s.table.copy()
	out.window = slices.Clone(s.window)
	return &out
}

// UpdateUint64 presents one item. Updates never fail.
func (s *Sketch) UpdateUint64(datum uint64) {
	s.hashUpdate(internal.HashUint64(datum, s.seed))
}

func (s *Sketch) UpdateInt64(datum int64)   { s.UpdateUint64(uint64(datum)) }
func (s *Sketch) UpdateInt32(datum int32)   { s.UpdateInt64(int64(datum)) }
func (s *Sketch) UpdateInt16(datum int16)   { s.UpdateInt64(int64(datum)) }
func (s *Sketch) UpdateInt8(datum int8)     { s.UpdateInt64(int64(datum)) }
func (s *Sketch) UpdateUint32(datum uint32) { s.UpdateInt32(int32(datum)) }
func (s *Sketch) UpdateUint16(datum uint16) { s.UpdateInt16(int16(datum)) }
func (s *Sketch) UpdateUint8(datum uint8)   { s.UpdateInt8(int8(datum)) }

// UpdateFloat64 treats -0.0 as 0.0 and all NaNs as one value.
func (s *Sketch) UpdateFloat64(datum float64) {
	s.hashUpdate(internal.HashFloat64(datum, s.seed))
}

func (s *Sketch) UpdateFloat32(datum float32) { s.UpdateFloat64(float64(datum)) }

// UpdateString ignores the empty string.
func (s *Sketch) UpdateString(datum string) {
	if len(datum) == 0 {
		return
	}
	s.UpdateBytes([]byte(datum))
}

// UpdateBytes ignores empty input.
func (s *Sketch) UpdateBytes(datum []byte) {
	if len(datum) == 0 {
		return
	}
	s.hashUpdate(internal.Hash(datum, s.seed))
}

func (s *Sketch) hashUpdate(h1, h2 uint64) {
	row := uint32(h1 & (s.k() - 1))
	col := uint32(min(bits.LeadingZeros64(h2), 63))
	rowCol := row<<6 | col
	// The all-ones pair is the table's empty marker, so that one pair moves to a neighbouring row.
	if rowCol == emptySlot {
		rowCol ^= 1 << 6
	}
	s.rowColUpdate(rowCol)
}

func (s *Sketch) rowColUpdate(rowCol uint32) {
	if int(rowCol&63) < s.firstInterestingColumn {
		return
	}
	if s.window == nil {
		s.updateSparse(rowCol)
	} else {
		s.updateWindowed(rowCol)
	}
}

func (s *Sketch) updateSparse(rowCol uint32) {
	if !s.table.maybeInsert(rowCol) {
		return
	}
	s.numCoupons++
	s.updateHip(rowCol)
	if s.numCoupons<<5 >= 3*s.k() {
		s.promoteSparseToWindowed()
	}
}

func (s *Sketch) updateWindowed(rowCol uint32) {
	col := int(rowCol & 63)
	novel := false
	switch {
	case col < s.windowOffset:
		// Early zone: the table holds the surprising zeros, so a hit clears one.
		novel = s.table.maybeDelete(rowCol)
	case col < s.windowOffset+8:
		row := rowCol >> 6
		oldBits := s.window[row]
		newBits := oldBits | 1<<(col-s.windowOffset)
		if newBits != oldBits {
			s.window[row] = newBits
			novel = true
		}
	default:
		novel = s.table.maybeInsert(rowCol)
	}
	if !novel {
		return
	}
	s.numCoupons++
	s.updateHip(rowCol)
	if s.numCoupons<<3 >= uint64(27+8*s.windowOffset)*s.k() {
		s.moveWindow()
	}
}

// updateHip must run after numCoupons has counted a novel coupon and before kxp forgets it.
func (s *Sketch) updateHip(rowCol uint32) {
	col := rowCol & 63
	s.hipAccum += float64(s.k()) / s.kxp
	s.kxp -= internal.InvPow2[col+1]
}

func (s *Sketch) promoteSparseToWindowed() {
	DebugLogger.Printf("cpc lgK=%d: sparse promoted to windowed at C=%d", s.lgK, s.numCoupons)
	s.window = make([]byte, s.k())
	old := s.table
	s.table = newPairTable(lgMinTableSize, 6+s.lgK)
	for _, rowCol := range old.slots {
		if rowCol == emptySlot {
			continue
		}
		if col := rowCol & 63; col < 8 {
			s.window[rowCol>>6] |= 1 << col
		} else {
			s.table.maybeInsert(rowCol)
		}
	}
}

// buildBitMatrix expands the sketch into one uint64 per row.
func (s *Sketch) buildBitMatrix() []uint64 {
	matrix := make([]uint64, s.k())
	// Columns left of the window default to one; the table flips the surprising ones back.
	defaultRow := uint64(1)<<s.windowOffset - 1
	for i := range matrix {
		matrix[i] = defaultRow
	}
	if s.numCoupons == 0 {
		return matrix
	}
	if s.window != nil {
		for i, b := range s.window {
			matrix[i] |= uint64(b) << s.windowOffset
		}
	}
	for _, rowCol := range s.table.slots {
		if rowCol != emptySlot {
			matrix[rowCol>>6] ^= 1 << (rowCol & 63)
		}
	}
	return matrix
}

func (s *Sketch) moveWindow() {
	newOffset := s.windowOffset + 1
	if newOffset > maxWindowOffset || newOffset != determineCorrectOffset(s.lgK, s.numCoupons) {
		panic("cpc: window moved out of step with the coupon count")
	}
	matrix := s.buildBitMatrix()
	if newOffset&7 == 0 {
		s.refreshKxp(matrix)
	}
	s.table.clear()
	s.firstInterestingColumn = s.fillWindowAndTable(matrix, newOffset, s.table)
	s.windowOffset = newOffset
	DebugLogger.Printf("cpc lgK=%d: window moved to offset %d at C=%d", s.lgK, newOffset, s.numCoupons)
}

// fillWindowAndTable splits a bit matrix into the window at offset and the surprises around it,
// and returns the first interesting column.
func (s *Sketch) fillWindowAndTable(matrix []uint64, offset int, table *pairTable) int {
	maskForClearingWindow := ^(uint64(0xff) << offset)
	maskForFlippingEarlyZone := uint64(1)<<offset - 1
	var allSurprisesOred uint64
	for i, pattern := range matrix {
		s.window[i] = byte(pattern >> offset)
		pattern &= maskForClearingWindow
		// Early zone zeros become ones and ones become zeros, so only surprises remain set.
		pattern ^= maskForFlippingEarlyZone
		allSurprisesOred |= pattern
		for pattern != 0 {
			col := bits.TrailingZeros64(pattern)
			pattern ^= 1 << col
			if !table.maybeInsert(uint32(i)<<6 | uint32(col)) {
				panic("cpc: surprise inserted twice")
			}
		}
	}
	return min(bits.TrailingZeros64(allSurprisesOred), offset)
}

// kxpByteTable[b] is the sum of 2^-(j+1) over the zero bits j of b.
var kxpByteTable = func() [256]float64 {
	var t [256]float64
	for b := range t {
		for j := 0; j < 8; j++ {
			if b&(1<<j) == 0 {
				t[b] += internal.InvPow2[j+1]
			}
		}
	}
	return t
}()

// refreshKxp recomputes kxp from scratch, limiting the drift of the incremental updates.
func (s *Sketch) refreshKxp(matrix []uint64) {
	var byteSums [8]float64
	for _, row := range matrix {
		for j := 0; j < 8; j++ {
			byteSums[j] += kxpByteTable[row&0xff]
			row >>= 8
		}
	}
	total := 0.0
	// Smallest terms first.
	for j := 7; j >= 0; j-- {
		total += internal.InvPow2[8*j] * byteSums[j]
	}
	s.kxp = total
}

func countBits(matrix []uint64) uint64 {
	var n uint64
	for _, row := range matrix {
		n += uint64(bits.OnesCount64(row))
	}
	return n
}
