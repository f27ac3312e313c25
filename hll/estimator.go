package hll

import (
	"math"

	"github.com/lytics/datasketches/internal"
)

var (
	hipRSEFactor    = math.Sqrt(math.Ln2)         // relative standard error factor of HIP
	nonHipRSEFactor = math.Sqrt(3*math.Ln2 - 1.0) // ... and of the composite estimator
)

const (
	couponRSEFactor = 0.409
	couponRSE       = couponRSEFactor / (1 << 13)

	maxRegisterValue = 63 // leading zeros are capped at 62, plus one
)

// expectedCoupons returns the expected number of distinct coupons after n distinct items. A coupon
// addresses one of 2^26 cells and carries a value v in [1,63] with probability 2^-v (2^-62 for 63).
func expectedCoupons(n float64) float64 {
	sum := 0.0
	for v := 1; v <= maxRegisterValue; v++ {
		q := internal.InvPow2[v]
		if v == maxRegisterValue {
			q = internal.InvPow2[maxRegisterValue-1]
		}
		sum += internal.OneMinusPowComplement(q*internal.InvPow2[keyBits26], n)
	}
	return sum * (1 << keyBits26)
}

// couponEstimate inverts expectedCoupons. Collisions are so rare at LIST and SET sizes that the
// result is barely above count, but it never falls below it.
func couponEstimate(count int) float64 {
	if count == 0 {
		return 0
	}
	c := float64(count)
	return math.Max(internal.InvertIncreasing(expectedCoupons, c), c)
}

func couponBound(count, numStdDev int, upper bool) float64 {
	est := couponEstimate(count)
	var bound float64
	if upper {
		bound = est / (1.0 - float64(numStdDev)*couponRSE)
	} else {
		bound = est / (1.0 + float64(numStdDev)*couponRSE)
	}
	return math.Max(bound, float64(count))
}

// compositeEstimate is Ertl's improved raw estimator over the register histogram. It is unbiased
// across the whole range, from all-zero arrays through saturation, so no linear counting
// crossover or bias table is needed. DataSketches' composite estimator interpolates raw HLL
// estimates against stored tables instead, so estimates of unioned sketches do not match it bit
// for bit.
func (r *registers) compositeEstimate() float64 {
	var hist [maxRegisterValue + 1]int
	for slot := 0; slot < r.k(); slot++ {
		hist[r.value(slot)]++
	}
	m := float64(r.k())
	const q = maxRegisterValue - 1
	z := m * tau(1.0-float64(hist[q+1])/m)
	for v := q; v >= 1; v-- {
		z = 0.5 * (z + float64(hist[v]))
	}
	z += m * sigma(float64(hist[0])/m)
	return m * m / (2 * math.Ln2 * z)
}

func sigma(x float64) float64 {
	if x == 1 {
		return math.Inf(1)
	}
	y := 1.0
	z := x
	for {
		x *= x
		zPrev := z
		z += x * y
		y += y
		if zPrev == z {
			return z
		}
	}
}

func tau(x float64) float64 {
	if x == 0 || x == 1 {
		return 0
	}
	y := 1.0
	z := 1 - x
	for {
		x = math.Sqrt(x)
		zPrev := z
		y *= 0.5
		z -= (1 - x) * (1 - x) * y
		if zPrev == z {
			return z / 3
		}
	}
}

func (r *registers) bound(numStdDev int, upper bool) float64 {
	k := float64(r.k())
	estimate, rseFactor := r.hipAccum, hipRSEFactor
	if r.outOfOrder {
		estimate, rseFactor = r.compositeEstimate(), nonHipRSEFactor
	}
	relErr := float64(numStdDev) * rseFactor / math.Sqrt(k)
	if upper {
		return estimate / (1.0 - relErr)
	}
	numNonZeros := k
	if r.curMin == 0 {
		numNonZeros -= float64(r.numAtCurMin)
	}
	return math.Max(estimate/(1.0+relErr), numNonZeros)
}
