package hll

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestRegisterGetSet(t *testing.T) {
	for _, tgt := range []TargetType{Hll6, Hll8} {
		for _, lgK := range []int{4, 5, 10, 12} {
			iterativeGetSet(t, lgK, tgt)
		}
	}
}

func iterativeGetSet(t *testing.T, lgK int, tgt TargetType) {
	r := newRegisters(lgK, tgt)
	for slot := 0; slot < r.k(); slot++ {
		valToInsert := uint8(slot % 64)
		r.putValue(slot, valToInsert)
		if readBack := r.value(slot); readBack != valToInsert {
			t.Fatal(tgt, slot, readBack, valToInsert)
		}
	}
	for slot := 0; slot < r.k(); slot++ {
		if readBack, expected := r.value(slot), uint8(slot%64); readBack != expected {
			t.Fatal(tgt, slot, readBack, expected)
		}
	}
}

func TestNibbles(t *testing.T) {
	r := newRegisters(4, Hll4)
	for slot := 0; slot < 16; slot++ {
		r.putNibble(slot, uint8(slot))
	}
	for slot := 0; slot < 16; slot++ {
		assert.Equal(t, uint8(slot), r.nibble(slot))
	}
	assert.Equal(t, []byte{0x10, 0x32, 0x54, 0x76, 0x98, 0xba, 0xdc, 0xfe}, r.data)
}

func TestShiftToBiggerCurMin(t *testing.T) {
	r := newRegisters(4, Hll4)
	for slot := 0; slot < 16; slot++ {
		r.couponUpdate(pair(slot, uint8(slot+1)))
	}
	// Filling the last zero register raised curMin, and values that fit in a nibble again left the
	// aux map.
	assert.Equal(t, uint8(1), r.curMin)
	assert.Equal(t, 1, r.numAtCurMin)
	for slot := 0; slot < 16; slot++ {
		assert.Equal(t, uint8(slot+1), r.value(slot))
	}
	assert.T(t, r.aux != nil)
	assert.Equal(t, 1, r.aux.auxCount) // only 16 is still 15 or more above curMin
	assert.Equal(t, uint8(auxToken), r.nibble(15))
	assert.Equal(t, uint8(14), r.nibble(14))

	for slot := 0; slot < 16; slot++ {
		r.couponUpdate(pair(slot, 20))
	}
	assert.Equal(t, uint8(20), r.curMin)
	assert.Equal(t, 16, r.numAtCurMin)
	assert.T(t, r.aux == nil)
}

func TestAuxMapGrows(t *testing.T) {
	r := newRegisters(10, Hll4)
	for slot := 0; slot < 100; slot++ {
		r.couponUpdate(pair(slot, uint8(20+slot%40)))
	}
	assert.Equal(t, 100, r.aux.auxCount)
	assert.T(t, r.aux.lgAuxArrInts > lgAuxArrInts[10])
	for slot := 0; slot < 100; slot++ {
		assert.Equal(t, uint8(20+slot%40), r.value(slot))
	}
	pairs := r.aux.pairs()
	for i := 1; i < len(pairs); i++ {
		assert.T(t, couponAddr(pairs[i-1]) < couponAddr(pairs[i]))
	}
}

func TestConvertPreservesValues(t *testing.T) {
	src := newRegisters(10, Hll8)
	for _, v := range randUint64s(t, 20000) {
		src.couponUpdate(coupon(v, v*0x9e3779b97f4a7c15))
	}
	for _, tgt := range []TargetType{Hll4, Hll6, Hll8} {
		out := src.convert(tgt)
		for slot := 0; slot < src.k(); slot++ {
			assert.Equal(t, src.value(slot), out.value(slot))
		}
		assert.Equal(t, src.hipAccum, out.hipAccum)
		assert.Equal(t, src.compositeEstimate(), out.compositeEstimate())
	}
}

func TestMergeMaxAndDownsample(t *testing.T) {
	fine := newRegisters(10, Hll4)
	for _, v := range randUint64s(t, 5000) {
		fine.couponUpdate(coupon(v, v>>7))
	}

	coarse := downsample(fine, 8)
	assert.Equal(t, 8, coarse.lgConfigK)
	for slot := 0; slot < coarse.k(); slot++ {
		var want uint8
		for s := slot; s < fine.k(); s += coarse.k() {
			want = max(want, fine.value(s))
		}
		assert.Equal(t, want, coarse.value(slot))
	}

	dst := newRegisters(8, Hll8)
	dst.mergeMax(fine)
	assert.T(t, dst.rebuild)
	assert.T(t, dst.outOfOrder)
	dst.checkRebuild()
	for slot := 0; slot < dst.k(); slot++ {
		assert.Equal(t, coarse.value(slot), dst.value(slot))
	}
	zeros := 0
	for slot := 0; slot < dst.k(); slot++ {
		if dst.value(slot) == 0 {
			zeros++
		}
	}
	assert.Equal(t, uint8(0), dst.curMin)
	assert.Equal(t, zeros, dst.numAtCurMin)
}

func TestHipTracksKxQ(t *testing.T) {
	r := newRegisters(6, Hll8)
	for _, v := range randUint64s(t, 500) {
		r.couponUpdate(coupon(v, v<<3))
	}
	kxq0, kxq1 := r.kxq0, r.kxq1
	r.rebuildCurMinNumKxQ()
	assert.T(t, abs(kxq0-r.kxq0) < 1e-9)
	assert.T(t, abs(kxq1-r.kxq1) < 1e-9)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
