// Package validate implements the structural checks a command must pass
// before it is handed to the accelerator or to a software kernel.
package validate

import (
	"github.com/slackhq/datamover/memory"
	"github.com/slackhq/datamover/record"
)

// Status is the outcome of validating a command. Anything but OK means the
// command must not be submitted.
type Status uint8

const (
	OK Status = iota
	NullAddress
	NullSize
	WrongSize
	MisalignedAddress
	OverlappingBuffers
	DualcastAlignment
	WrongDeltaSize
	WrongDIFSize
	DIFStripAdjacent
	WrongBatchSize
	UnsupportedOperation
)

var statusMap = map[Status]string{
	OK:                   "ok",
	NullAddress:          "null address",
	NullSize:             "null size",
	WrongSize:            "wrong size",
	MisalignedAddress:    "misaligned address",
	OverlappingBuffers:   "overlapping buffers",
	DualcastAlignment:    "dualcast destinations differ in page offset",
	WrongDeltaSize:       "wrong delta record size",
	WrongDIFSize:         "transfer size is not a multiple of the dif block",
	DIFStripAdjacent:     "dif strip destination is adjacent to the source",
	WrongBatchSize:       "wrong batch size",
	UnsupportedOperation: "unsupported operation",
}

func (s Status) String() string {
	if n, ok := statusMap[s]; ok {
		return n
	}
	return "unknown"
}

// executionMap is the execution status a device reports for the same defect.
var executionMap = map[Status]record.Status{
	OK:                   record.StatusSuccess,
	NullAddress:          record.StatusInvalidAddress,
	NullSize:             record.StatusInvalidTransferSize,
	WrongSize:            record.StatusInvalidTransferSize,
	MisalignedAddress:    record.StatusMisalignedAddress,
	OverlappingBuffers:   record.StatusOverlappingBuffers,
	DualcastAlignment:    record.StatusDualcastMisaligned,
	WrongDeltaSize:       record.StatusInvalidDeltaRecordSize,
	WrongDIFSize:         record.StatusInvalidTransferSize,
	DIFStripAdjacent:     record.StatusOverlappingBuffers,
	WrongBatchSize:       record.StatusInvalidDescriptorCount,
	UnsupportedOperation: record.StatusUnsupportedOpcode,
}

// Execution maps s to the completion status a producer writes when it
// rejects a command for the same reason.
func (s Status) Execution() record.Status {
	if e, ok := executionMap[s]; ok {
		return e
	}
	return record.StatusUnsupportedOpcode
}

const (
	// MaxDeltaTransferSize is the largest region create_delta and apply_delta
	// accept.
	MaxDeltaTransferSize = 0x80000
	// DeltaEntrySize is the size of one delta record entry: a 16-bit word
	// offset followed by 8 bytes of data.
	DeltaEntrySize = 10
	// MinDeltaRecordSize is the smallest create_delta record capacity.
	MinDeltaRecordSize = 80
	// MaxDeltaRecordSize is the largest delta record a maximal transfer can
	// produce.
	MaxDeltaRecordSize = MaxDeltaTransferSize / 8 * DeltaEntrySize
	// MinBatchSize is the smallest descriptor count a batch accepts.
	MinBatchSize = 4

	deltaAlignment = 8
	pageOffsetMask = 0xfff
)

// Command checks cmd. The check is pure: it reads cmd and nothing else, and
// returns the first failing check in a fixed order per operation.
func Command(cmd *record.Command) Status {
	switch cmd.Opcode() {
	case record.OpNop, record.OpDrain:
		return OK

	case record.OpBatch:
		return batch(cmd)

	case record.OpMemMove:
		return first(
			addresses(cmd.Source(), cmd.Destination()),
			size(cmd.TransferSize()),
		)

	case record.OpFill, record.OpCacheFlush:
		return first(
			addresses(cmd.Destination()),
			size(cmd.TransferSize()),
		)

	case record.OpCompare:
		return first(
			addresses(cmd.Source(), cmd.Source2()),
			size(cmd.TransferSize()),
		)

	case record.OpComparePattern, record.OpCRC:
		return first(
			addresses(cmd.Source()),
			size(cmd.TransferSize()),
		)

	case record.OpCopyCRC:
		n := uint64(cmd.TransferSize())
		return first(
			addresses(cmd.Source(), cmd.Destination()),
			size(cmd.TransferSize()),
			overlap(cmd.Source(), n, cmd.Destination(), n),
		)

	case record.OpDualcast:
		return dualcast(cmd)

	case record.OpCreateDelta:
		return createDelta(cmd)

	case record.OpApplyDelta:
		return applyDelta(cmd)

	case record.OpDIFCheck, record.OpDIFInsert, record.OpDIFStrip, record.OpDIFUpdate:
		return dif(cmd)

	default:
		return UnsupportedOperation
	}
}

// CheckBatchEntry checks one descriptor of a batch list. Batches can not be
// nested.
func CheckBatchEntry(cmd *record.Command) Status {
	if cmd.Opcode() == record.OpBatch {
		return UnsupportedOperation
	}
	return Command(cmd)
}

// Overlaps reports whether [a, a+n) and [b, b+m) have a byte in common. It is
// symmetric in its two regions.
func Overlaps(a, n, b, m uint64) bool {
	return memory.Overlaps(a, n, b, m)
}

// first evaluates checks lazily and in order.
func first(checks ...func() Status) Status {
	for _, c := range checks {
		if s := c(); s != OK {
			return s
		}
	}
	return OK
}

func addresses(addrs ...uint64) func() Status {
	return func() Status {
		for _, a := range addrs {
			if a == 0 {
				return NullAddress
			}
		}
		return OK
	}
}

func size(sizes ...uint32) func() Status {
	return func() Status {
		for _, s := range sizes {
			if s == 0 {
				return NullSize
			}
		}
		return OK
	}
}

func aligned(align uint64, addrs ...uint64) func() Status {
	return func() Status {
		for _, a := range addrs {
			if a%align != 0 {
				return MisalignedAddress
			}
		}
		return OK
	}
}

func overlap(a, n, b, m uint64) func() Status {
	return func() Status {
		if Overlaps(a, n, b, m) {
			return OverlappingBuffers
		}
		return OK
	}
}

func check(failed bool, s Status) func() Status {
	return func() Status {
		if failed {
			return s
		}
		return OK
	}
}

func batch(cmd *record.Command) Status {
	return first(
		addresses(cmd.DescriptorList()),
		check(cmd.DescriptorCount() < MinBatchSize, WrongBatchSize),
		aligned(record.CommandAlignment, cmd.DescriptorList()),
	)
}

func dualcast(cmd *record.Command) Status {
	src, dst, dst2 := cmd.Source(), cmd.Destination(), cmd.Destination2()
	n := uint64(cmd.TransferSize())
	return first(
		addresses(src, dst, dst2),
		size(cmd.TransferSize()),
		overlap(src, n, dst, n),
		overlap(src, n, dst2, n),
		overlap(dst, n, dst2, n),
		check(dst&pageOffsetMask != dst2&pageOffsetMask, DualcastAlignment),
	)
}

func deltaTransferSize(n uint32) func() Status {
	return check(n%8 != 0 || n > MaxDeltaTransferSize, WrongSize)
}

func createDelta(cmd *record.Command) Status {
	src, src2, delta := cmd.Source(), cmd.Source2(), cmd.DeltaRecordAddress()
	n, capacity := cmd.TransferSize(), cmd.DeltaRecordSize()
	return first(
		addresses(src, src2, delta),
		size(n, capacity),
		deltaTransferSize(n),
		check(capacity < MinDeltaRecordSize || capacity%DeltaEntrySize != 0, WrongDeltaSize),
		aligned(deltaAlignment, src, src2, delta),
		overlap(delta, uint64(capacity), src, uint64(n)),
		overlap(delta, uint64(capacity), src2, uint64(n)),
	)
}

func applyDelta(cmd *record.Command) Status {
	dst, delta := cmd.Destination(), cmd.DeltaRecordAddress()
	n, d := cmd.TransferSize(), cmd.DeltaRecordSize()
	return first(
		addresses(dst, delta),
		size(n, d),
		deltaTransferSize(n),
		check(d%DeltaEntrySize != 0 || d > MaxDeltaRecordSize, WrongDeltaSize),
		aligned(deltaAlignment, dst, delta),
		overlap(delta, uint64(d), dst, uint64(n)),
	)
}

// DIFSpans returns the number of source and destination bytes a DIF command
// touches, given that its transfer size counts source bytes.
func DIFSpans(cmd *record.Command) (src, dst uint64) {
	bs := uint64(cmd.DIFBlockSize())
	n := uint64(cmd.TransferSize())
	switch cmd.Opcode() {
	case record.OpDIFInsert:
		return n, n / bs * (bs + record.DIFFooterSize)
	case record.OpDIFStrip:
		return n, n / (bs + record.DIFFooterSize) * bs
	case record.OpDIFUpdate:
		return n, n
	default:
		return n, 0
	}
}

func dif(cmd *record.Command) Status {
	op := cmd.Opcode()
	n := cmd.TransferSize()
	bs := cmd.DIFBlockSize()
	unit := bs + record.DIFFooterSize
	if op == record.OpDIFInsert {
		unit = bs
	}

	if op == record.OpDIFCheck {
		return first(
			addresses(cmd.Source()),
			size(n),
			check(n%unit != 0, WrongDIFSize),
		)
	}

	src, dst := cmd.Source(), cmd.Destination()
	srcSpan, dstSpan := DIFSpans(cmd)
	return first(
		addresses(src, dst),
		size(n),
		check(n%unit != 0, WrongDIFSize),
		overlap(src, srcSpan, dst, dstSpan),
		check(op == record.OpDIFStrip && dst+dstSpan == src, DIFStripAdjacent),
	)
}
