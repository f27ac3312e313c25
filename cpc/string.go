package cpc

import (
	"fmt"
	"strings"
)

// String returns the summary section of ToString.
func (s *Sketch) String() string {
	return s.ToString(false)
}

// ToString describes the sketch for humans; detail adds the window bytes and surprising pairs.
func (s *Sketch) ToString(detail bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### CPC sketch summary:\n")
	fmt.Fprintf(&sb, "   lg_k           : %d\n", s.lgK)
	fmt.Fprintf(&sb, "   seed hash      : %x\n", s.seedHash)
	fmt.Fprintf(&sb, "   C              : %d\n", s.numCoupons)
	fmt.Fprintf(&sb, "   flavor         : %s\n", s.Flavor())
	fmt.Fprintf(&sb, "   merged         : %t\n", s.mergeFlag)
	if !s.mergeFlag {
		fmt.Fprintf(&sb, "   HIP estimate   : %f\n", s.hipAccum)
		fmt.Fprintf(&sb, "   kxp            : %f\n", s.kxp)
	}
	fmt.Fprintf(&sb, "   interesting col: %d\n", s.firstInterestingColumn)
	fmt.Fprintf(&sb, "   table entries  : %d\n", s.table.numItems)
	if s.window != nil {
		fmt.Fprintf(&sb, "   window         : allocated\n")
		fmt.Fprintf(&sb, "   window offset  : %d\n", s.windowOffset)
	} else {
		fmt.Fprintf(&sb, "   window         : not allocated\n")
	}
	fmt.Fprintf(&sb, "### End sketch summary\n")

	if detail {
		fmt.Fprintf(&sb, "### CPC sketch data detail:\n")
		if s.window != nil {
			fmt.Fprintf(&sb, "%-10s%-10s\n", "Row", "Window")
			for row, b := range s.window {
				if b != 0 {
					fmt.Fprintf(&sb, "%-10d%08b\n", row, b)
				}
			}
		}
		fmt.Fprintf(&sb, "%-10s%-10s%-6s\n", "Index", "Row", "Col")
		for i, rowCol := range s.table.items() {
			fmt.Fprintf(&sb, "%-10d%-10d%-6d\n", i, rowCol>>6, rowCol&63)
		}
		fmt.Fprintf(&sb, "### End sketch data detail\n")
	}
	return sb.String()
}
