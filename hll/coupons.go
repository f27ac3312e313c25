package hll

import (
	"slices"

	"github.com/kamstrup/intmap"
)

const (
	lgInitListSize = 3
	lgInitSetSize  = 5

	// A set grows (or is promoted) once it is more than 3/4 full.
	resizeNumer = 3
	resizeDenom = 4
)

// couponStore holds the coupons of a sketch in LIST or SET mode. In LIST mode the coupons sit in
// insertion order in list; in SET mode they live in set and lgArr is the size of the open
// addressing table an updatable image would use.
type couponStore struct {
	lgArr      int
	list       []uint32
	set        *intmap.Set[uint32]
	outOfOrder bool
}

func newCouponList() *couponStore {
	return &couponStore{lgArr: lgInitListSize, list: make([]uint32, 0, 1<<lgInitListSize)}
}

func (c *couponStore) count() int {
	if c.set != nil {
		return c.set.Len()
	}
	return len(c.list)
}

// listUpdate adds a coupon in LIST mode and reports whether the list is now full.
func (c *couponStore) listUpdate(coupon uint32) bool {
	for _, existing := range c.list {
		if existing == coupon {
			return false
		}
	}
	c.list = append(c.list, coupon)
	return len(c.list) >= 1<<c.lgArr
}

// setUpdate adds a coupon in SET mode and reports whether the set has outgrown the largest table
// allowed for lgConfigK and must become an HLL array.
func (c *couponStore) setUpdate(coupon uint32, lgConfigK int) bool {
	if c.set.Has(coupon) {
		return false
	}
	c.set.Add(coupon)
	if resizeDenom*c.set.Len() > resizeNumer*(1<<c.lgArr) {
		if c.lgArr == lgConfigK-3 {
			return true
		}
		c.lgArr++
	}
	return false
}

// sorted returns the coupons in ascending order, which is the order compact images use.
func (c *couponStore) sorted() []uint32 {
	out := make([]uint32, 0, c.count())
	if c.set != nil {
		c.set.ForEach(func(v uint32) bool {
			out = append(out, v)
			return true
		})
	} else {
		out = append(out, c.list...)
	}
	slices.Sort(out)
	return out
}

func (c *couponStore) copy() *couponStore {
	out := &couponStore{lgArr: c.lgArr, outOfOrder: c.outOfOrder}
	if c.set != nil {
		out.set = intmap.NewSet[uint32](c.set.Len())
		c.set.ForEach(func(v uint32) bool {
			out.set.Add(v)
			return true
		})
		return out
	}
	out.list = make([]uint32, len(c.list), 1<<lgInitListSize)
	copy(out.list, c.list)
	return out
}

func promoteListToSet(list *couponStore) *couponStore {
	set := &couponStore{
		lgArr:      lgInitSetSize,
		set:        intmap.NewSet[uint32](1 << lgInitSetSize),
		outOfOrder: list.outOfOrder,
	}
	for _, c := range list.list {
		set.set.Add(c)
	}
	return set
}

// promoteToHll replays the coupons into a fresh register array. The HIP accumulator starts from
// the coupon estimate so the estimate is continuous across the transition, and a store that
// absorbed merged coupons hands its out-of-order flag on.
func promoteToHll(c *couponStore, lgConfigK int, tgt TargetType) *registers {
	r := newRegisters(lgConfigK, tgt)
	for _, cp := range c.sorted() {
		r.couponUpdate(cp)
	}
	r.hipAccum = couponEstimate(c.count())
	r.outOfOrder = c.outOfOrder
	return r
}

// probeTable lays coupons out the way an updatable image stores them: open addressing over
// 2^lgArr ints, probing with a stride taken from the address bits above the table index.
func probeTable(coupons []uint32, lgArr int) []uint32 {
	arr := make([]uint32, 1<<lgArr)
	for _, c := range coupons {
		if idx := findCoupon(arr, lgArr, c); idx < 0 {
			arr[^idx] = c
		}
	}
	return arr
}

// findCoupon returns the index holding coupon, or the bitwise complement of the empty index where
// it belongs.
func findCoupon(arr []uint32, lgArr int, coupon uint32) int {
	mask := uint32(len(arr) - 1)
	probe := coupon & mask
	loopIndex := probe
	for {
		at := arr[probe]
		if at == 0 {
			return ^int(probe)
		}
		if at == coupon {
			return int(probe)
		}
		stride := (couponAddr(coupon) >> lgArr) | 1
		probe = (probe + stride) & mask
		if probe == loopIndex {
			panic("hll: coupon table has no empty slot")
		}
	}
}
