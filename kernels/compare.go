package kernels

import (
	"github.com/slackhq/datamover/record"
)

func compare(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	a, b := view(cmd.Source(), n), view(cmd.Source2(), n)
	completeCompare(cmd, res, n, func(i uint32) bool { return a[i] == b[i] })
}

func comparePattern(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	a := view(cmd.Source(), n)
	p := cmd.Pattern()
	completeCompare(cmd, res, n, func(i uint32) bool { return a[i] == PatternByte(p, i) })
}

// completeCompare reports the offset of the first differing byte as bytes
// completed, or n when the regions are equal.
func completeCompare(cmd *record.Command, res *record.Result, n uint32, equal func(uint32) bool) {
	i := uint32(0)
	for i < n && equal(i) {
		i++
	}
	result := record.ResultEqual
	if i < n {
		result = record.ResultNotEqual
	}
	res.SetBytesCompleted(i)
	CompletePredicate(cmd, res, result)
}
