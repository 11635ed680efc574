package kernels

import (
	"encoding/binary"

	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/validate"
)

// A delta record is a sequence of entries, each a little endian 16-bit offset
// counted in 8-byte words followed by the 8 bytes found at that word in the
// second source.
const (
	deltaWord   = 8
	deltaOffset = 2
)

// DeltaEntry is one decoded delta record entry.
type DeltaEntry struct {
	Word uint16
	Data [deltaWord]byte
}

// DeltaEntries decodes a delta record.
func DeltaEntries(b []byte) []DeltaEntry {
	out := make([]DeltaEntry, 0, len(b)/validate.DeltaEntrySize)
	for len(b) >= validate.DeltaEntrySize {
		var e DeltaEntry
		e.Word = binary.LittleEndian.Uint16(b)
		copy(e.Data[:], b[deltaOffset:validate.DeltaEntrySize])
		out = append(out, e)
		b = b[validate.DeltaEntrySize:]
	}
	return out
}

// RebaseDelta adds words to the offset of every entry of a delta record.
func RebaseDelta(b []byte, words uint16) {
	for ; len(b) >= validate.DeltaEntrySize; b = b[validate.DeltaEntrySize:] {
		binary.LittleEndian.PutUint16(b, binary.LittleEndian.Uint16(b)+words)
	}
}

func createDelta(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	a, b := view(cmd.Source(), n), view(cmd.Source2(), n)
	capacity := cmd.DeltaRecordSize()
	delta := view(cmd.DeltaRecordAddress(), capacity)

	written := uint32(0)
	result := record.ResultEqual
	completed := n
	for off := uint32(0); off < n; off += deltaWord {
		x, y := a[off:off+deltaWord], b[off:off+deltaWord]
		if string(x) == string(y) {
			continue
		}
		if written+validate.DeltaEntrySize > capacity {
			result = record.ResultDeltaOverflow
			completed = off
			break
		}
		e := delta[written : written+validate.DeltaEntrySize]
		binary.LittleEndian.PutUint16(e, uint16(off/deltaWord))
		copy(e[deltaOffset:], y)
		written += validate.DeltaEntrySize
		result = record.ResultNotEqual
	}

	res.SetDeltaRecordSize(written)
	res.SetBytesCompleted(completed)
	CompletePredicate(cmd, res, result)
}

// applyDelta reports delta record bytes consumed as bytes completed.
func applyDelta(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	dst := view(cmd.Destination(), n)
	size := cmd.DeltaRecordSize()
	delta := view(cmd.DeltaRecordAddress(), size)

	status := record.StatusSuccess
	next := 0
	consumed := uint32(0)
	for ; consumed+validate.DeltaEntrySize <= size; consumed += validate.DeltaEntrySize {
		e := delta[consumed : consumed+validate.DeltaEntrySize]
		word := int(binary.LittleEndian.Uint16(e))
		if word < next {
			status = record.StatusDeltaOffsetOrder
			break
		}
		off := word * deltaWord
		if off+deltaWord > int(n) {
			status = record.StatusDeltaOffsetRange
			break
		}
		copy(dst[off:off+deltaWord], e[deltaOffset:])
		next = word + 1
	}

	res.SetBytesCompleted(consumed)
	res.Complete(status, 0)
}
