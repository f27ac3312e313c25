package hll

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
)

func newSketch(t *testing.T, lgK int, tgt TargetType) *Sketch {
	s, err := NewSketch(lgK, tgt, false)
	assert.Equalf(t, nil, err, "%v", err)
	return s
}

func randUint64s(t *testing.T, count int) []uint64 {
	buf := make([]byte, 8)
	output := make([]uint64, count)
	for i := 0; i < count; i++ {
		n, err := rand.Read(buf)
		assert.T(t, err == nil && n == 8, err, n)
		output[i] = binary.LittleEndian.Uint64(buf)
	}
	return output
}

func relErr(est float64, n int) float64 {
	return math.Abs(est-float64(n)) / float64(n)
}

func TestModeProgression(t *testing.T) {
	s := newSketch(t, 12, Hll4)
	assert.Equal(t, ModeList, s.CurrentMode())
	for i := uint64(0); i < 7; i++ {
		s.UpdateUint64(i)
	}
	assert.Equal(t, ModeList, s.CurrentMode())
	s.UpdateUint64(7)
	assert.Equal(t, ModeSet, s.CurrentMode())

	// The set is promoted once it overflows a table of 2^(lgK-3) slots.
	for i := uint64(8); i < 384; i++ {
		s.UpdateUint64(i)
	}
	assert.Equal(t, ModeSet, s.CurrentMode())
	for i := uint64(384); i < 1000; i++ {
		s.UpdateUint64(i)
	}
	assert.Equal(t, ModeHll, s.CurrentMode())

	// Small sketches skip SET mode entirely.
	small := newSketch(t, 7, Hll8)
	for i := uint64(0); i < 8; i++ {
		small.UpdateUint64(i)
	}
	assert.Equal(t, ModeHll, small.CurrentMode())
}

func TestSmallCardinalitiesAreExact(t *testing.T) {
	s := newSketch(t, 12, Hll8)
	for n := 1; n <= 300; n++ {
		s.UpdateInt64(int64(n))
		assert.Equalf(t, n, int(s.Estimate()), "n=%d", n)
	}
}

func TestDuplicates(t *testing.T) {
	s := newSketch(t, 10, Hll4)
	for i := 0; i < 1000; i++ {
		s.UpdateString("same")
	}
	assert.Equal(t, 1, int(s.Estimate()))

	for i := 0; i < 5000; i++ {
		s.UpdateInt64(int64(i))
	}
	before := s.Estimate()
	for i := 0; i < 5000; i++ {
		s.UpdateInt64(int64(i))
	}
	assert.Equal(t, before, s.Estimate())
}

// Tests cardinality accuracy with varying number of distinct inputs
func TestCardinality(t *testing.T) {
	counts := []int{1000, 5000, 20000, 100000}
	for _, tgt := range []TargetType{Hll4, Hll6, Hll8} {
		for _, count := range counts {
			s := newSketch(t, 12, tgt)
			for i := 0; i < count; i++ {
				s.UpdateInt64(int64(i))
			}
			assert.Tf(t, relErr(s.Estimate(), count) < 0.05, "%s n=%d estimate=%f", tgt, count, s.Estimate())
			assert.Tf(t, relErr(s.CompositeEstimate(), count) < 0.06, "%s n=%d composite=%f", tgt, count, s.CompositeEstimate())
		}
	}
}

func TestRandomCardinality(t *testing.T) {
	const count = 50000
	s := newSketch(t, 14, Hll6)
	for _, v := range randUint64s(t, count) {
		s.UpdateUint64(v)
	}
	// HIP at lgK=14 has an RSE of about 0.65%; 6 sigma keeps random input from flaking.
	assert.Tf(t, relErr(s.Estimate(), count) < 0.04, "estimate=%f", s.Estimate())
}

func TestTargetTypesAgree(t *testing.T) {
	var sketches []*Sketch
	for _, tgt := range []TargetType{Hll4, Hll6, Hll8} {
		s := newSketch(t, 11, tgt)
		for i := 0; i < 30000; i++ {
			s.UpdateInt64(int64(i))
		}
		sketches = append(sketches, s)
	}
	for _, s := range sketches[1:] {
		assert.Equal(t, sketches[0].Estimate(), s.Estimate())
		assert.Equal(t, sketches[0].CompositeEstimate(), s.CompositeEstimate())
		for slot := 0; slot < 1<<11; slot++ {
			assert.Equal(t, sketches[0].regs.value(slot), s.regs.value(slot))
		}
	}
}

func TestCopyAs(t *testing.T) {
	for _, count := range []int{3, 100, 10000} {
		s := newSketch(t, 12, Hll4)
		for i := 0; i < count; i++ {
			s.UpdateInt64(int64(i))
		}
		for _, tgt := range []TargetType{Hll4, Hll6, Hll8} {
			c := s.CopyAs(tgt)
			assert.Equal(t, tgt, c.TargetType())
			assert.Equal(t, s.CurrentMode(), c.CurrentMode())
			assert.Equal(t, s.Estimate(), c.Estimate())

			// The copy is independent.
			for i := 1000000; i < 1001000; i++ {
				c.UpdateInt64(int64(i))
			}
			assert.NotEqual(t, s.SerializeCompact(0), c.SerializeCompact(0))
		}
	}
}

func TestReset(t *testing.T) {
	for _, full := range []bool{false, true} {
		s, err := NewSketch(10, Hll4, full)
		assert.Equal(t, nil, err)
		for i := 0; i < 5000; i++ {
			s.UpdateInt64(int64(i))
		}
		assert.T(t, !s.IsEmpty())
		s.Reset()
		assert.T(t, s.IsEmpty())
		assert.Equal(t, 0.0, s.Estimate())
		if full {
			assert.Equal(t, ModeHll, s.CurrentMode())
		} else {
			assert.Equal(t, ModeList, s.CurrentMode())
		}
	}
}

func TestStartFullSize(t *testing.T) {
	s, err := NewSketch(12, Hll6, true)
	assert.Equal(t, nil, err)
	assert.Equal(t, ModeHll, s.CurrentMode())
	assert.T(t, s.IsEmpty())
	assert.Equal(t, 0.0, s.Estimate())
	assert.Equal(t, 0.0, s.CompositeEstimate())

	s.UpdateString("a")
	s.UpdateString("b")
	s.UpdateString("c")
	assert.Equal(t, 3, int(math.Round(s.Estimate())))
}

func TestConfigErrors(t *testing.T) {
	for _, tc := range []struct {
		lgK int
		tgt TargetType
	}{
		{3, Hll4},
		{22, Hll8},
		{12, TargetType(3)},
	} {
		_, err := NewSketch(tc.lgK, tc.tgt, false)
		assert.Tf(t, errors.Is(err, ErrConfig), "lgK=%d tgt=%d err=%v", tc.lgK, tc.tgt, err)
	}

	s := newSketch(t, 12, Hll4)
	for _, numStdDev := range []int{0, 4} {
		_, err := s.LowerBound(numStdDev)
		assert.T(t, errors.Is(err, ErrConfig))
		_, err = s.UpperBound(numStdDev)
		assert.T(t, errors.Is(err, ErrConfig))
	}
	_, err := RelativeError(true, false, 2, 1)
	assert.T(t, errors.Is(err, ErrConfig))
}

func TestBoundsBracketEstimate(t *testing.T) {
	s := newSketch(t, 10, Hll4)
	for n := 0; n < 20000; n++ {
		if n%997 == 0 {
			est := s.Estimate()
			for numStdDev := 1; numStdDev <= 3; numStdDev++ {
				lb, err := s.LowerBound(numStdDev)
				assert.Equal(t, nil, err)
				ub, err := s.UpperBound(numStdDev)
				assert.Equal(t, nil, err)
				assert.Tf(t, lb <= est && est <= ub, "n=%d lb=%f est=%f ub=%f", n, lb, est, ub)
			}
		}
		s.UpdateInt64(int64(n))
	}
}

func TestRelativeError(t *testing.T) {
	lower, err := RelativeError(false, false, 12, 2)
	assert.Equal(t, nil, err)
	upper, err := RelativeError(true, false, 12, 2)
	assert.Equal(t, nil, err)
	assert.T(t, lower > 0)
	assert.Equal(t, -lower, upper)
	assert.T(t, math.Abs(lower-2*math.Sqrt(math.Ln2)/64) < 1e-12)

	unioned, err := RelativeError(false, true, 12, 2)
	assert.Equal(t, nil, err)
	assert.T(t, unioned > lower)
}

func TestItemEncodings(t *testing.T) {
	same := func(f func(*Sketch), g func(*Sketch)) {
		a, b := newSketch(t, 12, Hll8), newSketch(t, 12, Hll8)
		f(a)
		g(b)
		assert.Equal(t, a.SerializeCompact(0), b.SerializeCompact(0))
	}

	same(func(s *Sketch) { s.UpdateInt32(-1) }, func(s *Sketch) { s.UpdateInt64(-1) })
	same(func(s *Sketch) { s.UpdateUint32(math.MaxUint32) }, func(s *Sketch) { s.UpdateInt64(-1) })
	same(func(s *Sketch) { s.UpdateUint8(200) }, func(s *Sketch) { s.UpdateInt8(-56) })
	same(func(s *Sketch) { s.UpdateUint16(7) }, func(s *Sketch) { s.UpdateUint64(7) })
	same(func(s *Sketch) { s.UpdateFloat64(math.Copysign(0, -1)) }, func(s *Sketch) { s.UpdateFloat64(0) })
	same(func(s *Sketch) { s.UpdateFloat64(math.NaN()) }, func(s *Sketch) { s.UpdateFloat64(math.Float64frombits(0x7ff8000000000001)) })
	same(func(s *Sketch) { s.UpdateFloat32(1.5) }, func(s *Sketch) { s.UpdateFloat64(1.5) })
	same(func(s *Sketch) { s.UpdateString("abc") }, func(s *Sketch) { s.UpdateBytes([]byte("abc")) })

	s := newSketch(t, 12, Hll8)
	s.UpdateString("")
	s.UpdateBytes(nil)
	s.UpdateBytes([]byte{})
	assert.T(t, s.IsEmpty())
}

func TestToString(t *testing.T) {
	s := newSketch(t, 8, Hll4)
	for i := 0; i < 3000; i++ {
		s.UpdateInt64(int64(i))
	}
	out := s.ToString(true, true, true, false)
	assert.NotEqual(t, "", out)
	assert.Equal(t, s.String(), s.ToString(true, false, false, false))

	small := newSketch(t, 8, Hll4)
	small.UpdateInt64(1)
	for _, summary := range []string{s.String(), small.String()} {
		for _, line := range strings.Split(summary, "\n") {
			if !strings.HasPrefix(line, "  ") {
				continue
			}
			assert.Equalf(t, 17, strings.Index(line, ":"), "label column of %q", line)
		}
	}
}
