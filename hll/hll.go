package hll

import (
	"math"
	"math/bits"

	"github.com/lytics/datasketches/internal"
)

// TargetType selects the width of each register once a sketch reaches HLL mode.
type TargetType uint8

const (
	Hll4 TargetType = iota // 4 bits per register plus an exception map, the smallest form
	Hll6                   // 6 bits per register
	Hll8                   // one byte per register, the fastest form
)

func (t TargetType) String() string {
	switch t {
	case Hll4:
		return "HLL_4"
	case Hll6:
		return "HLL_6"
	case Hll8:
		return "HLL_8"
	}
	return "UNKNOWN"
}

// Mode is the current internal representation of a sketch.
type Mode uint8

const (
	ModeList Mode = iota
	ModeSet
	ModeHll
)

func (m Mode) String() string {
	switch m {
	case ModeList:
		return "LIST"
	case ModeSet:
		return "SET"
	case ModeHll:
		return "HLL"
	}
	return "UNKNOWN"
}

const (
	MinLgK            = 4
	MaxLgK            = 21
	DefaultLgK        = 12
	DefaultTargetType = Hll4

	keyBits26 = 26
	keyMask26 = 1<<keyBits26 - 1
)

var (
	ErrConfig       = internal.ErrConfig
	ErrFormat       = internal.ErrFormat
	ErrSeedMismatch = internal.ErrSeedMismatch
	ErrAllocation   = internal.ErrAllocation

	DebugLogger = internal.DebugLogger
)

// Sketch is an HLL sketch. The zero value is not usable, construct one with NewSketch or
// Deserialize. A Sketch is not safe for concurrent use; build one sketch per goroutine and merge
// them with a Union.
type Sketch struct {
	lgConfigK     int
	tgt           TargetType
	startFullSize bool

	// Exactly one of coupons and regs is set, selected by mode.
	mode    Mode
	coupons *couponStore
	regs    *registers
}

// NewSketch returns an empty sketch with 2^lgConfigK registers of the given width. With
// startFullSize the sketch skips the list and set phases and allocates its registers immediately.
func NewSketch(lgConfigK int, tgt TargetType, startFullSize bool) (*Sketch, error) {
	if err := checkLgK(lgConfigK); err != nil {
		return nil, err
	}
	if err := checkTargetType(tgt); err != nil {
		return nil, err
	}
	s := &Sketch{lgConfigK: lgConfigK, tgt: tgt, startFullSize: startFullSize}
	s.Reset()
	return s, nil
}

func checkLgK(lgK int) error {
	if lgK < MinLgK || lgK > MaxLgK {
		return internal.Configf("lgConfigK must be in [%d,%d], got %d", MinLgK, MaxLgK, lgK)
	}
	return nil
}

func checkTargetType(tgt TargetType) error {
	if tgt > Hll8 {
		return internal.Configf("unknown target type %d", tgt)
	}
	return nil
}

func checkNumStdDev(numStdDev int) error {
	if numStdDev < 1 || numStdDev > 3 {
		return internal.Configf("numStdDev must be 1, 2 or 3, got %d", numStdDev)
	}
	return nil
}

// Reset discards everything the sketch has seen, keeping its configuration.
func (s *Sketch) Reset() {
	if s.startFullSize {
		s.mode, s.coupons, s.regs = ModeHll, nil, newRegisters(s.lgConfigK, s.tgt)
		return
	}
	s.mode, s.coupons, s.regs = ModeList, newCouponList(), nil
}

// Copy returns an independent deep copy.
func (s *Sketch) Copy() *Sketch {
	return s.CopyAs(s.tgt)
}

// CopyAs returns an independent copy whose registers use the given width. Coupon-mode sketches
// only change their target; HLL-mode sketches are re-encoded register by register.
func (s *Sketch) CopyAs(tgt TargetType) *Sketch {
	out := &Sketch{lgConfigK: s.lgConfigK, tgt: tgt, startFullSize: s.startFullSize, mode: s.mode}
	switch s.mode {
	case ModeHll:
		if tgt == s.tgt {
			out.regs = s.regs.copy()
		} else {
			out.regs = s.regs.convert(tgt)
		}
	default:
		out.coupons = s.coupons.copy()
	}
	return out
}

func (s *Sketch) LgConfigK() int         { return s.lgConfigK }
func (s *Sketch) TargetType() TargetType { return s.tgt }
func (s *Sketch) CurrentMode() Mode      { return s.mode }
func (s *Sketch) StartsFullSize() bool   { return s.startFullSize }
func (s *Sketch) IsCompact() bool        { return false }

// IsOutOfOrder reports whether the sketch has absorbed merged state, which makes the HIP
// estimate unusable.
func (s *Sketch) IsOutOfOrder() bool {
	if s.mode == ModeHll {
		return s.regs.outOfOrder
	}
	return s.coupons.outOfOrder
}

func (s *Sketch) IsEmpty() bool {
	if s.mode == ModeHll {
		return s.regs.isEmpty()
	}
	return s.coupons.count() == 0
}

// UpdateUint64 presents one item. Updates never fail.
func (s *Sketch) UpdateUint64(datum uint64) {
	s.couponUpdate(coupon(internal.HashUint64(datum, internal.DefaultSeed)))
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
	s.couponUpdate(coupon(internal.HashFloat64(datum, internal.DefaultSeed)))
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
	s.couponUpdate(coupon(internal.Hash(datum, internal.DefaultSeed)))
}

// coupon packs the 26 low bits of the first hash word with the leading zero count of the second.
func coupon(h1, h2 uint64) uint32 {
	addr26 := uint32(h1 & keyMask26)
	lz := bits.LeadingZeros64(h2)
	if lz > 62 {
		lz = 62
	}
	return uint32(lz+1)<<keyBits26 | addr26
}

func couponValue(c uint32) uint8 { return uint8(c >> keyBits26) }
func couponAddr(c uint32) uint32 { return c & keyMask26 }

func (s *Sketch) couponUpdate(c uint32) {
	switch s.mode {
	case ModeList:
		if s.coupons.listUpdate(c) {
			if s.lgConfigK < 8 {
				s.toHll(promoteToHll(s.coupons, s.lgConfigK, s.tgt))
			} else {
				s.coupons = promoteListToSet(s.coupons)
				s.mode = ModeSet
				DebugLogger.Printf("hll lgK=%d: list promoted to set", s.lgConfigK)
			}
		}
	case ModeSet:
		if s.coupons.setUpdate(c, s.lgConfigK) {
			s.toHll(promoteToHll(s.coupons, s.lgConfigK, s.tgt))
		}
	case ModeHll:
		s.regs.checkRebuild()
		s.regs.couponUpdate(c)
	}
}

func (s *Sketch) toHll(regs *registers) {
	DebugLogger.Printf("hll lgK=%d: %s promoted to %s registers", s.lgConfigK, s.mode, s.tgt)
	s.mode, s.coupons, s.regs = ModeHll, nil, regs
}

// Estimate returns the best available cardinality estimate: exact-ish coupon counting for small
// sketches, HIP for sketches updated in order, and the composite estimate otherwise.
func (s *Sketch) Estimate() float64 {
	if s.mode != ModeHll {
		return couponEstimate(s.coupons.count())
	}
	s.regs.checkRebuild()
	if s.regs.outOfOrder {
		return s.regs.compositeEstimate()
	}
	return s.regs.hipAccum
}

// CompositeEstimate ignores the HIP accumulator and estimates from the registers alone.
func (s *Sketch) CompositeEstimate() float64 {
	if s.mode != ModeHll {
		return couponEstimate(s.coupons.count())
	}
	s.regs.checkRebuild()
	return s.regs.compositeEstimate()
}

// LowerBound returns the approximate lower bound of the estimate at numStdDev standard deviations,
// which must be 1, 2 or 3.
func (s *Sketch) LowerBound(numStdDev int) (float64, error) {
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	if s.mode != ModeHll {
		return couponBound(s.coupons.count(), numStdDev, false), nil
	}
	s.regs.checkRebuild()
	return s.regs.bound(numStdDev, false), nil
}

// UpperBound returns the approximate upper bound of the estimate at numStdDev standard deviations,
// which must be 1, 2 or 3.
func (s *Sketch) UpperBound(numStdDev int) (float64, error) {
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	if s.mode != ModeHll {
		return couponBound(s.coupons.count(), numStdDev, true), nil
	}
	s.regs.checkRebuild()
	return s.regs.bound(numStdDev, true), nil
}

// RelativeError returns the relative error of an estimate at numStdDev standard deviations for a
// sketch of 2^lgConfigK registers. unioned selects the error of the composite estimator used by
// merged sketches. Following DataSketches, the value for upper bounds is negative, so that
// estimate/(1+RelativeError(...)) yields the bound in both cases.
//
// The value is always the asymptotic rseFactor/sqrt(k). DataSketches switches to empirically
// measured tables for lgConfigK <= 12, so for those sizes the two libraries report different
// errors and bounds.
func RelativeError(upperBound, unioned bool, lgConfigK, numStdDev int) (float64, error) {
	if err := checkLgK(lgConfigK); err != nil {
		return 0, err
	}
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	rseFactor := hipRSEFactor
	if unioned {
		rseFactor = nonHipRSEFactor
	}
	relErr := float64(numStdDev) * rseFactor / math.Sqrt(float64(uint64(1)<<lgConfigK))
	if upperBound {
		return -relErr, nil
	}
	return relErr, nil
}
