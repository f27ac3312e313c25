package hll

import (
	"slices"

	"github.com/lytics/datasketches/internal"
)

const (
	auxToken = 15 // HLL_4 nibble meaning "look the value up in the aux map"
	hll6Mask = 0x3f
)

// registers is the HLL-mode state of a sketch: 2^lgConfigK registers packed 4, 6 or 8 bits wide,
// plus the estimator state that rides along with them.
//
// For HLL_4 a nibble holds value-curMin, and numAtCurMin counts the nibbles that are zero. For
// HLL_6 and HLL_8 registers hold their value directly, curMin is normally zero and numAtCurMin
// counts the registers still at zero.
type registers struct {
	lgConfigK int
	tgt       TargetType
	data      []byte
	aux       *auxMap // HLL_4 only, nil until a value overflows its nibble

	curMin      uint8
	numAtCurMin int

	hipAccum   float64
	kxq0, kxq1 float64 // sum of 2^-value over registers below 32 and at or above 32
	outOfOrder bool

	// Set on a union's working array after register-wise merges, which skip the bookkeeping
	// above. checkRebuild restores it before anyone reads it.
	rebuild bool
}

func registerBytes(lgConfigK int, tgt TargetType) int {
	k := 1 << lgConfigK
	switch tgt {
	case Hll4:
		return k / 2
	case Hll6:
		// We can store 4 6-bit registers in 3 bytes (4 * 6 == 3 * 8). The extra byte lets the last
		// register be read through a full two-byte window.
		return (k*3)/4 + 1
	}
	return k
}

func newRegisters(lgConfigK int, tgt TargetType) *registers {
	k := 1 << lgConfigK
	return &registers{
		lgConfigK:   lgConfigK,
		tgt:         tgt,
		data:        make([]byte, registerBytes(lgConfigK, tgt)),
		numAtCurMin: k,
		kxq0:        float64(k),
	}
}

func (r *registers) k() int { return 1 << r.lgConfigK }

func (r *registers) copy() *registers {
	out := *r
	out.data = slices.Clone(r.data)
	out.aux = r.aux.copy()
	return &out
}

func (r *registers) isEmpty() bool {
	return r.curMin == 0 && r.numAtCurMin == r.k()
}

func (r *registers) nibble(slot int) uint8 {
	b := r.data[slot>>1]
	if slot&1 != 0 {
		b >>= 4
	}
	return b & 0x0f
}

func (r *registers) putNibble(slot int, v uint8) {
	i := slot >> 1
	if slot&1 != 0 {
		r.data[i] = r.data[i]&0x0f | v<<4
	} else {
		r.data[i] = r.data[i]&0xf0 | v&0x0f
	}
}

// Given a register number, returns where its 6 bits start: the low byte of a little-endian
// two-byte window and the shift within that window.
func bitPosn(slot int) (byteIdx int, shift uint) {
	bitIdx := slot * 6
	return bitIdx >> 3, uint(bitIdx & 7)
}

func (r *registers) get6(slot int) uint8 {
	byteIdx, shift := bitPosn(slot)
	window := uint64(r.data[byteIdx]) | uint64(r.data[byteIdx+1])<<8
	return uint8(internal.ExtractShift(window, shift, shift+5))
}

func (r *registers) put6(slot int, v uint8) {
	byteIdx, shift := bitPosn(slot)
	window := uint64(r.data[byteIdx]) | uint64(r.data[byteIdx+1])<<8
	window &^= internal.OnesFromTo(shift, shift+5) // Clear bits holding this register.
	window |= uint64(v&hll6Mask) << shift
	r.data[byteIdx] = byte(window)
	r.data[byteIdx+1] = byte(window >> 8)
}

// value returns the true value of a register regardless of width.
func (r *registers) value(slot int) uint8 {
	switch r.tgt {
	case Hll4:
		nib := r.nibble(slot)
		if nib == auxToken {
			return r.aux.mustFindValue(slot)
		}
		return nib + r.curMin
	case Hll6:
		return r.get6(slot)
	}
	return r.data[slot]
}

// putValue writes a register of an HLL_6 or HLL_8 array.
func (r *registers) putValue(slot int, v uint8) {
	if r.tgt == Hll6 {
		r.put6(slot, v)
		return
	}
	r.data[slot] = v
}

func (r *registers) couponUpdate(c uint32) {
	slot := int(couponAddr(c)) & (r.k() - 1)
	newValue := couponValue(c)
	if r.tgt == Hll4 {
		r.hll4Update(slot, newValue)
		return
	}
	old := r.value(slot)
	if newValue > old {
		r.putValue(slot, newValue)
		r.hipAndKxQUpdate(old, newValue)
		if old == 0 {
			r.numAtCurMin--
		}
	}
}

// hipAndKxQUpdate must run before a register changes from oldValue to newValue: the HIP increment
// uses the KxQ sum as it was before the change.
func (r *registers) hipAndKxQUpdate(oldValue, newValue uint8) {
	r.hipAccum += float64(r.k()) / (r.kxq0 + r.kxq1)
	r.addKxQ(newValue)
	if oldValue < 32 {
		r.kxq0 -= internal.InvPow2[oldValue]
	} else {
		r.kxq1 -= internal.InvPow2[oldValue]
	}
}

func (r *registers) addKxQ(v uint8) {
	if v < 32 {
		r.kxq0 += internal.InvPow2[v]
	} else {
		r.kxq1 += internal.InvPow2[v]
	}
}

func (r *registers) hll4Update(slot int, newValue uint8) {
	rawStored := r.nibble(slot)
	lbOnOld := rawStored + r.curMin
	if newValue <= lbOnOld {
		return
	}
	actualOld := lbOnOld
	if rawStored == auxToken {
		actualOld = r.aux.mustFindValue(slot)
	}
	if newValue <= actualOld {
		return
	}
	r.hipAndKxQUpdate(actualOld, newValue)

	shiftedNew := newValue - r.curMin
	switch {
	case rawStored == auxToken:
		// Old and new values are both exceptions; only the aux map changes.
		r.aux.mustReplace(slot, newValue)
	case shiftedNew >= auxToken:
		r.putNibble(slot, auxToken)
		if r.aux == nil {
			r.aux = newAuxMap(lgAuxArrInts[r.lgConfigK], r.lgConfigK)
		}
		r.aux.mustAdd(slot, newValue)
	default:
		r.putNibble(slot, shiftedNew)
	}

	if actualOld == r.curMin {
		r.numAtCurMin--
		for r.numAtCurMin == 0 {
			r.shiftToBiggerCurMin()
		}
	}
}

// shiftToBiggerCurMin raises curMin by one, decrements every ordinary nibble, and pulls aux
// entries that now fit back into the nibble array.
func (r *registers) shiftToBiggerCurMin() {
	newCurMin := r.curMin + 1
	numAtNewCurMin := 0
	numAuxTokens := 0
	for slot := 0; slot < r.k(); slot++ {
		stored := r.nibble(slot)
		switch {
		case stored == 0:
			panic("hll: shifting curMin with a register still at curMin")
		case stored < auxToken:
			stored--
			r.putNibble(slot, stored)
			if stored == 0 {
				numAtNewCurMin++
			}
		default:
			numAuxTokens++
		}
	}

	var newAux *auxMap
	if r.aux != nil {
		for _, p := range r.aux.pairs() {
			slot := int(couponAddr(p))
			actual := couponValue(p)
			shifted := actual - newCurMin
			if shifted < auxToken {
				r.putNibble(slot, shifted)
				numAuxTokens--
				continue
			}
			if newAux == nil {
				newAux = newAuxMap(lgAuxArrInts[r.lgConfigK], r.lgConfigK)
			}
			newAux.mustAdd(slot, actual)
		}
	}
	if (newAux == nil && numAuxTokens != 0) || (newAux != nil && newAux.auxCount != numAuxTokens) {
		panic("hll: aux map out of step with aux tokens")
	}
	r.aux = newAux
	r.curMin = newCurMin
	r.numAtCurMin = numAtNewCurMin
}

// minAndCount returns the smallest register value and how many registers hold it.
func (r *registers) minAndCount() (uint8, int) {
	curMin, num := uint8(64), 0
	for slot := 0; slot < r.k(); slot++ {
		v := r.value(slot)
		if v < curMin {
			curMin, num = v, 1
		} else if v == curMin {
			num++
		}
	}
	return curMin, num
}

func (r *registers) checkRebuild() {
	if r.rebuild {
		r.rebuildCurMinNumKxQ()
	}
}

// rebuildCurMinNumKxQ recomputes numAtCurMin and the KxQ sums from the registers. Only HLL_6 and
// HLL_8 arrays are ever rebuilt, since HLL_4 nibbles depend on curMin; for those curMin stays
// zero and numAtCurMin counts the zero registers, which is what couponUpdate maintains.
func (r *registers) rebuildCurMinNumKxQ() {
	r.kxq0, r.kxq1 = 0, 0
	zeros := 0
	for slot := 0; slot < r.k(); slot++ {
		v := r.value(slot)
		r.addKxQ(v)
		if v == 0 {
			zeros++
		}
	}
	r.curMin, r.numAtCurMin = 0, zeros
	r.rebuild = false
}

// convert re-encodes the registers at another width. Values, HIP and the out-of-order flag carry
// over; KxQ and the curMin bookkeeping are recomputed for the new layout.
func (r *registers) convert(tgt TargetType) *registers {
	r.checkRebuild()
	out := newRegisters(r.lgConfigK, tgt)
	out.kxq0 = 0
	if tgt == Hll4 {
		out.curMin, out.numAtCurMin = r.minAndCount()
	} else {
		out.numAtCurMin = 0
	}
	for slot := 0; slot < r.k(); slot++ {
		v := r.value(slot)
		out.addKxQ(v)
		if tgt != Hll4 {
			out.putValue(slot, v)
			if v == 0 {
				out.numAtCurMin++
			}
			continue
		}
		if v >= out.curMin+auxToken {
			out.putNibble(slot, auxToken)
			if out.aux == nil {
				out.aux = newAuxMap(lgAuxArrInts[r.lgConfigK], r.lgConfigK)
			}
			out.aux.mustAdd(slot, v)
		} else {
			out.putNibble(slot, v-out.curMin)
		}
	}
	out.hipAccum = r.hipAccum
	out.outOfOrder = r.outOfOrder
	return out
}

// mergeMax folds src into r, an HLL_8 array of equal or lower precision, by taking register
// maxima. Source slots beyond r's size fold onto slot & (k-1).
func (r *registers) mergeMax(src *registers) {
	mask := r.k() - 1
	for slot := 0; slot < src.k(); slot++ {
		v := src.value(slot)
		if v > r.data[slot&mask] {
			r.data[slot&mask] = v
		}
	}
	r.rebuild = true
	r.outOfOrder = true
}

// downsample returns an HLL_8 copy of r at a lower (or equal) precision, replaying each non-zero
// register as a coupon.
func downsample(r *registers, lgConfigK int) *registers {
	out := newRegisters(lgConfigK, Hll8)
	for slot := 0; slot < r.k(); slot++ {
		if v := r.value(slot); v > 0 {
			out.couponUpdate(pair(slot, v))
		}
	}
	out.hipAccum = r.hipAccum
	out.outOfOrder = r.outOfOrder
	return out
}
