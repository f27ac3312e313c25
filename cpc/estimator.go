package cpc

import (
	"math"

	"github.com/lytics/datasketches/internal"
)

var (
	iconErrorConstant = math.Ln2
	hipErrorConstant  = math.Sqrt(math.Ln2 / 2)
)

// Estimate returns the HIP estimate for sketches built directly from items and the ICON estimate
// for union results.
func (s *Sketch) Estimate() float64 {
	if s.mergeFlag {
		return iconEstimate(s.lgK, s.numCoupons)
	}
	return s.hipAccum
}

// IconEstimate estimates from lgK and the coupon count alone.
func (s *Sketch) IconEstimate() float64 {
	return iconEstimate(s.lgK, s.numCoupons)
}

// expectedCoupons returns the expected number of set bits after n distinct items. Column j is hit
// with probability 2^-(j+1), except the last, which absorbs the remaining 2^-63.
func expectedCoupons(lgK int, n float64) float64 {
	k := float64(uint64(1) << lgK)
	sum := 0.0
	for j := 0; j < 64; j++ {
		p := internal.InvPow2[min(j+1, 63)]
		sum += internal.OneMinusPowComplement(p/k, n)
	}
	return k * sum
}

func iconEstimate(lgK int, numCoupons uint64) float64 {
	if numCoupons == 0 {
		return 0
	}
	c := float64(numCoupons)
	f := func(n float64) float64 { return expectedCoupons(lgK, n) }
	return math.Max(internal.InvertIncreasing(f, c), c)
}

// LowerBound returns the approximate lower bound of the estimate at kappa standard deviations,
// which must be 1, 2 or 3. It never falls below the coupon count.
func (s *Sketch) LowerBound(kappa int) (float64, error) {
	if err := checkKappa(kappa); err != nil {
		return 0, err
	}
	if s.numCoupons == 0 {
		return 0, nil
	}
	est, eps := s.estimateAndEpsilon(kappa)
	return math.Max(est/(1+eps), float64(s.numCoupons)), nil
}

// UpperBound returns the approximate upper bound of the estimate at kappa standard deviations,
// which must be 1, 2 or 3.
func (s *Sketch) UpperBound(kappa int) (float64, error) {
	if err := checkKappa(kappa); err != nil {
		return 0, err
	}
	if s.numCoupons == 0 {
		return 0, nil
	}
	est, eps := s.estimateAndEpsilon(kappa)
	return est / (1 - eps), nil
}

func (s *Sketch) estimateAndEpsilon(kappa int) (float64, float64) {
	constant := hipErrorConstant
	if s.mergeFlag {
		constant = iconErrorConstant
	}
	eps := float64(kappa) * constant / math.Sqrt(float64(s.k()))
	return s.Estimate(), eps
}
