package emulator

import (
	"github.com/slackhq/datamover/kernels"
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/validate"
)

// Fault is a page fault the emulated device hits after processing Bytes of a
// command. Write selects the direction reported in the completion status.
type Fault struct {
	Bytes uint32
	Write bool
}

// FaultPolicy decides whether the emulated device faults on cmd.
type FaultPolicy interface {
	Fault(cmd *record.Command) (Fault, bool)
}

// FaultPolicyFunc adapts a function to a [FaultPolicy].
type FaultPolicyFunc func(cmd *record.Command) (Fault, bool)

func (f FaultPolicyFunc) Fault(cmd *record.Command) (Fault, bool) {
	return f(cmd)
}

// FaultAfter faults every command that is larger than n bytes after its
// first n bytes.
func FaultAfter(n uint32, write bool) FaultPolicy {
	return FaultPolicyFunc(func(*record.Command) (Fault, bool) {
		return Fault{Bytes: n, Write: write}, true
	})
}

// faultable reports whether op processes a byte range and can therefore stop
// part way through.
func faultable(op record.Opcode) bool {
	switch op {
	case record.OpNop, record.OpDrain, record.OpBatch:
		return false
	}
	return op.Known()
}

// progress returns how much work cmd describes, in the unit bytes completed
// is reported in, and the granularity the device advances by.
func progress(cmd *record.Command) (total, unit uint32) {
	switch cmd.Opcode() {
	case record.OpCreateDelta:
		return cmd.TransferSize(), 8
	case record.OpApplyDelta:
		return cmd.DeltaRecordSize(), validate.DeltaEntrySize
	case record.OpDIFInsert:
		return cmd.TransferSize(), cmd.DIFBlockSize()
	case record.OpDIFCheck, record.OpDIFStrip, record.OpDIFUpdate:
		return cmd.TransferSize(), cmd.DIFBlockSize() + record.DIFFooterSize
	default:
		return cmd.TransferSize(), 1
	}
}

// terminal reports whether the outcome of a prefix already decides the whole
// command, in which case no fault is reported.
func terminal(op record.Opcode, r *record.Result) bool {
	if r.Status() != record.StatusSuccess {
		return true
	}
	switch op {
	case record.OpCompare, record.OpComparePattern:
		return r.Result() == record.ResultNotEqual
	case record.OpCreateDelta:
		return r.Result() == record.ResultDeltaOverflow
	}
	return false
}

// faultAddress is the first address the device could not access.
func faultAddress(cmd *record.Command, k uint32, write bool) uint64 {
	switch cmd.Opcode() {
	case record.OpApplyDelta:
		return cmd.DeltaRecordAddress() + uint64(k)
	case record.OpFill, record.OpCacheFlush:
		return cmd.Destination() + uint64(k)
	case record.OpDIFInsert:
		if write {
			bs := uint64(cmd.DIFBlockSize())
			return cmd.Destination() + uint64(k)/bs*(bs+record.DIFFooterSize)
		}
	case record.OpDIFStrip:
		if write {
			bs := uint64(cmd.DIFBlockSize())
			return cmd.Destination() + uint64(k)/(bs+record.DIFFooterSize)*bs
		}
	case record.OpMemMove:
		if kernels.Descending(cmd.Source(), cmd.Destination(), cmd.TransferSize()) {
			base := cmd.Source()
			if write {
				base = cmd.Destination()
			}
			return base + uint64(cmd.TransferSize()-k) - 1
		}
	}
	if write && cmd.Has(record.FieldDestination) {
		return cmd.Destination() + uint64(k)
	}
	return cmd.Source() + uint64(k)
}

// execute runs cmd the way a device that may fault would, completing res.
func execute(cmd *record.Command, res *record.Result, faults FaultPolicy) bool {
	op := cmd.Opcode()
	if faults == nil || !faultable(op) {
		kernels.Run(cmd, res)
		return false
	}
	f, ok := faults.Fault(cmd)
	if !ok {
		kernels.Run(cmd, res)
		return false
	}

	total, unit := progress(cmd)
	k := f.Bytes - f.Bytes%unit
	if k >= total {
		kernels.Run(cmd, res)
		return false
	}

	prefix := new(record.Command)
	*prefix = *cmd
	prefix.SetFlags(prefix.Flags() &^ record.FlagCheckResult)
	switch op {
	case record.OpApplyDelta:
		prefix.SetDeltaRecordSize(k)
	case record.OpMemMove:
		n := cmd.TransferSize()
		if kernels.Descending(cmd.Source(), cmd.Destination(), n) {
			prefix.SetSource(cmd.Source() + uint64(n-k))
			prefix.SetDestination(cmd.Destination() + uint64(n-k))
		}
		prefix.SetTransferSize(k)
	default:
		prefix.SetTransferSize(k)
	}

	scratch := record.NewResult()
	defer scratch.Release()
	kernels.Run(prefix, scratch)
	if terminal(op, scratch) {
		kernels.Run(cmd, res)
		return false
	}

	result := scratch.Result()
	if op == record.OpMemMove && kernels.Descending(cmd.Source(), cmd.Destination(), cmd.TransferSize()) {
		result = record.ResultDescending
	}

	status := record.StatusPageFault
	if f.Write {
		status |= record.StatusWriteFault
	}
	copy(res[record.ResultSize/2:], scratch[record.ResultSize/2:])
	res.SetBytesCompleted(k)
	res.SetFaultAddress(faultAddress(cmd, k, f.Write))
	res.Complete(status, result)
	return true
}
