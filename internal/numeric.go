package internal

import "math"

// InvertIncreasing returns n such that f(n) == target, where f is an increasing function on
// [0, +Inf) with f(0) == 0. The search doubles an upper bracket and then bisects, so the answer is a
// pure function of its inputs.
func InvertIncreasing(f func(float64) float64, target float64) float64 {
	if target <= 0 {
		return 0
	}
	lo, hi := 0.0, math.Max(target, 1)
	for f(hi) < target {
		lo = hi
		hi *= 2
		if hi > 1e300 {
			return hi
		}
	}
	for i := 0; i < 256; i++ {
		mid := lo + (hi-lo)/2
		if mid <= lo || mid >= hi {
			break
		}
		if f(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2
}

// OneMinusPowComplement returns 1 - (1-p)^n without losing precision when p is tiny.
func OneMinusPowComplement(p, n float64) float64 {
	return -math.Expm1(n * math.Log1p(-p))
}
