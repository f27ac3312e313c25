package hll

import (
	"fmt"
	"strings"
)

// String returns the summary section of ToString.
func (s *Sketch) String() string {
	return s.ToString(true, false, false, false)
}

// ToString describes the sketch for humans. summary prints configuration and estimates, detail
// lists registers (HLL mode) or coupons, auxDetail lists the HLL_4 exception map, and all includes
// registers that are still zero in the detail listing. The output is not meant to be parsed.
func (s *Sketch) ToString(summary, detail, auxDetail, all bool) string {
	var sb strings.Builder
	if summary {
		lb, _ := s.LowerBound(1)
		ub, _ := s.UpperBound(1)
		fmt.Fprintf(&sb, "### HLL sketch summary:\n")
		fmt.Fprintf(&sb, "  Log Config K   : %d\n", s.lgConfigK)
		fmt.Fprintf(&sb, "  Hll Target     : %s\n", s.tgt)
		fmt.Fprintf(&sb, "  Current Mode   : %s\n", s.mode)
		fmt.Fprintf(&sb, "  LB             : %f\n", lb)
		fmt.Fprintf(&sb, "  Estimate       : %f\n", s.Estimate())
		fmt.Fprintf(&sb, "  UB             : %f\n", ub)
		fmt.Fprintf(&sb, "  OutOfOrder flag: %t\n", s.IsOutOfOrder())
		if s.mode == ModeHll {
			r := s.regs
			fmt.Fprintf(&sb, "  CurMin         : %d\n", r.curMin)
			fmt.Fprintf(&sb, "  NumAtCurMin    : %d\n", r.numAtCurMin)
			fmt.Fprintf(&sb, "  HipAccum       : %f\n", r.hipAccum)
			fmt.Fprintf(&sb, "  KxQ0           : %f\n", r.kxq0)
			fmt.Fprintf(&sb, "  KxQ1           : %f\n", r.kxq1)
			if s.tgt == Hll4 {
				fmt.Fprintf(&sb, "  Aux table?     : %t\n", r.aux != nil)
			}
		} else {
			fmt.Fprintf(&sb, "  Coupon count   : %d\n", s.coupons.count())
		}
		fmt.Fprintf(&sb, "### End HLL sketch summary\n")
	}

	if detail {
		fmt.Fprintf(&sb, "### HLL sketch data detail:\n")
		if s.mode == ModeHll {
			fmt.Fprintf(&sb, "%-10s%-6s\n", "Slot", "Value")
			for slot := 0; slot < s.regs.k(); slot++ {
				if v := s.regs.value(slot); v > 0 || all {
					fmt.Fprintf(&sb, "%-10d%-6d\n", slot, v)
				}
			}
		} else {
			s.writePairs(&sb, s.coupons.sorted())
		}
		fmt.Fprintf(&sb, "### End sketch data detail\n")
	}

	if auxDetail && s.mode == ModeHll && s.regs.aux != nil {
		fmt.Fprintf(&sb, "### HLL sketch aux detail:\n")
		s.writePairs(&sb, s.regs.aux.pairs())
		fmt.Fprintf(&sb, "### End sketch aux detail\n")
	}
	return sb.String()
}

func (s *Sketch) writePairs(sb *strings.Builder, pairs []uint32) {
	mask := uint32(1)<<s.lgConfigK - 1
	fmt.Fprintf(sb, "%-10s%-10s%-10s%-6s\n", "Index", "Key", "Slot", "Value")
	for i, p := range pairs {
		fmt.Fprintf(sb, "%-10d%-10d%-10d%-6d\n", i, couponAddr(p), couponAddr(p)&mask, couponValue(p))
	}
}
