package cpc

import (
	"slices"
)

const (
	emptySlot = ^uint32(0)

	lgMinTableSize = 2
	upsizeNumer    = 3
	upsizeDenom    = 4
	downsizeNumer  = 1
	downsizeDenom  = 4
)

// pairTable is a linear probing set of rowCol values. The home slot of a value is taken from its
// high bits, so for a table of 2^lgSize slots the slots stay roughly sorted by row.
type pairTable struct {
	lgSize       int
	numValidBits int
	numItems     int
	slots        []uint32
}

func newPairTable(lgSize, numValidBits int) *pairTable {
	t := &pairTable{lgSize: lgSize, numValidBits: numValidBits}
	t.slots = make([]uint32, 1<<lgSize)
	for i := range t.slots {
		t.slots[i] = emptySlot
	}
	return t
}

// pairTableFor returns a table sized for the given pairs, which must be distinct.
func pairTableFor(pairs []uint32, lgK int) *pairTable {
	lgSize := lgMinTableSize
	for upsizeDenom*len(pairs) > upsizeNumer*(1<<lgSize) {
		lgSize++
	}
	t := newPairTable(lgSize, 6+lgK)
	for _, p := range pairs {
		t.mustInsert(p)
	}
	t.numItems = len(pairs)
	return t
}

func (t *pairTable) copy() *pairTable {
	out := *t
	out.slots = slices.Clone(t.slots)
	return &out
}

func (t *pairTable) clear() {
	for i := range t.slots {
		t.slots[i] = emptySlot
	}
	t.numItems = 0
}

func (t *pairTable) lookup(item uint32) int {
	mask := len(t.slots) - 1
	shift := max(t.numValidBits-t.lgSize, 0)
	probe := int(item>>shift) & mask
	for t.slots[probe] != item && t.slots[probe] != emptySlot {
		probe = (probe + 1) & mask
	}
	return probe
}

// maybeInsert adds item and reports whether it was new.
func (t *pairTable) maybeInsert(item uint32) bool {
	idx := t.lookup(item)
	if t.slots[idx] == item {
		return false
	}
	t.slots[idx] = item
	t.numItems++
	for upsizeDenom*t.numItems > upsizeNumer*len(t.slots) {
		t.rebuild(t.lgSize + 1)
	}
	return true
}

// maybeDelete removes item and reports whether it was present.
func (t *pairTable) maybeDelete(item uint32) bool {
	idx := t.lookup(item)
	if t.slots[idx] == emptySlot {
		return false
	}
	t.slots[idx] = emptySlot
	t.numItems--

	// Re-seat the rest of the cluster so lookups never stop early at the hole.
	mask := len(t.slots) - 1
	idx = (idx + 1) & mask
	for fetched := t.slots[idx]; fetched != emptySlot; fetched = t.slots[idx] {
		t.slots[idx] = emptySlot
		t.mustInsert(fetched)
		idx = (idx + 1) & mask
	}

	for downsizeDenom*t.numItems < downsizeNumer*len(t.slots) && t.lgSize > lgMinTableSize {
		t.rebuild(t.lgSize - 1)
	}
	return true
}

func (t *pairTable) mustInsert(item uint32) {
	idx := t.lookup(item)
	if t.slots[idx] == item {
		panic("cpc: pair inserted twice")
	}
	t.slots[idx] = item
}

func (t *pairTable) rebuild(lgSize int) {
	old := t.slots
	t.lgSize = lgSize
	t.slots = make([]uint32, 1<<lgSize)
	for i := range t.slots {
		t.slots[i] = emptySlot
	}
	for _, item := range old {
		if item != emptySlot {
			t.mustInsert(item)
		}
	}
}

// items returns the stored pairs in ascending order.
func (t *pairTable) items() []uint32 {
	out := make([]uint32, 0, t.numItems)
	for _, item := range t.slots {
		if item != emptySlot {
			out = append(out, item)
		}
	}
	slices.Sort(out)
	return out
}
