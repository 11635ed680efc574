package kernels

import (
	"github.com/slackhq/datamover/record"
)

// Descending reports whether a mem_move from src to dst of n bytes has to run
// from the end towards the start, which is the case when the destination
// starts inside the source.
func Descending(src, dst uint64, n uint32) bool {
	return dst > src && dst < src+uint64(n)
}

func memMove(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	src, dst := cmd.Source(), cmd.Destination()
	var result uint8
	if Descending(src, dst, n) {
		result = record.ResultDescending
	}
	copy(view(dst, n), view(src, n))
	res.SetBytesCompleted(n)
	res.Complete(record.StatusSuccess, result)
}

// PatternByte returns the byte of pattern that lands i bytes from the start
// of the region.
func PatternByte(pattern uint64, i uint32) byte {
	return byte(pattern >> (8 * (i % 8)))
}

func fill(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	d := view(cmd.Destination(), n)
	p := cmd.Pattern()
	for i := range d {
		d[i] = PatternByte(p, uint32(i))
	}
	res.SetBytesCompleted(n)
	res.Complete(record.StatusSuccess, 0)
}

func dualcast(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	s := view(cmd.Source(), n)
	copy(view(cmd.Destination(), n), s)
	copy(view(cmd.Destination2(), n), s)
	res.SetBytesCompleted(n)
	res.Complete(record.StatusSuccess, 0)
}

// cacheFlush has nothing to do on the CPU path beyond accounting; coherent
// caches already hold the data a reader would observe.
func cacheFlush(cmd *record.Command, res *record.Result) {
	res.SetBytesCompleted(cmd.TransferSize())
	res.Complete(record.StatusSuccess, 0)
}
