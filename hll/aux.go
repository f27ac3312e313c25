package hll

import (
	"cmp"
	"slices"
)

// lgAuxArrInts is the starting size of the exception map for each lgConfigK.
var lgAuxArrInts = [...]int{0, 2, 2, 2, 2, 2, 2, 3, 3, 3, 4, 4, 5, 5, 6, 7, 8, 9, 10, 11, 12, 13}

// auxMap holds the true values of HLL_4 registers whose nibble is the aux token. Entries are pairs
// of value<<26 | slot in an open addressing table; zero marks an empty entry.
type auxMap struct {
	lgAuxArrInts int
	lgConfigK    int
	entries      []uint32
	auxCount     int
}

func newAuxMap(lgAuxArrInts, lgConfigK int) *auxMap {
	return &auxMap{
		lgAuxArrInts: lgAuxArrInts,
		lgConfigK:    lgConfigK,
		entries:      make([]uint32, 1<<lgAuxArrInts),
	}
}

func pair(slot int, value uint8) uint32 {
	return uint32(value)<<keyBits26 | uint32(slot)&keyMask26
}

func (a *auxMap) copy() *auxMap {
	if a == nil {
		return nil
	}
	out := *a
	out.entries = slices.Clone(a.entries)
	return &out
}

func (a *auxMap) find(slot int) int {
	mask := len(a.entries) - 1
	configKMask := uint32(1)<<a.lgConfigK - 1
	probe := slot & mask
	loopIndex := probe
	for {
		v := a.entries[probe]
		if v == 0 {
			return ^probe
		}
		if int(v&configKMask) == slot {
			return probe
		}
		stride := (slot >> a.lgAuxArrInts) | 1
		probe = (probe + stride) & mask
		if probe == loopIndex {
			panic("hll: aux map has no empty slot")
		}
	}
}

func (a *auxMap) mustFindValue(slot int) uint8 {
	idx := a.find(slot)
	if idx < 0 {
		panic("hll: aux token without aux entry")
	}
	return couponValue(a.entries[idx])
}

func (a *auxMap) mustAdd(slot int, value uint8) {
	idx := a.find(slot)
	if idx >= 0 {
		panic("hll: aux entry already present")
	}
	a.entries[^idx] = pair(slot, value)
	a.auxCount++
	if resizeDenom*a.auxCount > resizeNumer*len(a.entries) {
		a.grow()
	}
}

func (a *auxMap) mustReplace(slot int, value uint8) {
	idx := a.find(slot)
	if idx < 0 {
		panic("hll: aux entry missing")
	}
	a.entries[idx] = pair(slot, value)
}

func (a *auxMap) grow() {
	old := a.entries
	a.lgAuxArrInts++
	a.entries = make([]uint32, 1<<a.lgAuxArrInts)
	for _, p := range old {
		if p != 0 {
			a.entries[^a.find(int(couponAddr(p)))] = p
		}
	}
}

// pairs returns the live entries ordered by slot.
func (a *auxMap) pairs() []uint32 {
	out := make([]uint32, 0, a.auxCount)
	for _, p := range a.entries {
		if p != 0 {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(x, y uint32) int { return cmp.Compare(couponAddr(x), couponAddr(y)) })
	return out
}
