// Package kernels holds the software reference implementation of every
// accelerator operation. A kernel reads its command, performs the transform
// on the CPU and completes the result record. Kernels never report partial
// completion: page faults on caller memory are resolved by the operating
// system while the kernel runs.
package kernels

import (
	"github.com/slackhq/datamover/memory"
	"github.com/slackhq/datamover/record"
)

// Run executes cmd and completes res. The command must already have passed
// validation; Run does not check addresses. A batch is handed to [RunBatch].
func Run(cmd *record.Command, res *record.Result) {
	switch cmd.Opcode() {
	case record.OpNop, record.OpDrain:
		res.SetBytesCompleted(0)
		res.Complete(record.StatusSuccess, 0)
	case record.OpBatch:
		RunBatch(cmd, res)
	case record.OpMemMove:
		memMove(cmd, res)
	case record.OpFill:
		fill(cmd, res)
	case record.OpCompare:
		compare(cmd, res)
	case record.OpComparePattern:
		comparePattern(cmd, res)
	case record.OpCreateDelta:
		createDelta(cmd, res)
	case record.OpApplyDelta:
		applyDelta(cmd, res)
	case record.OpDualcast:
		dualcast(cmd, res)
	case record.OpCRC:
		crc(cmd, res)
	case record.OpCopyCRC:
		copyCRC(cmd, res)
	case record.OpDIFCheck:
		difCheck(cmd, res)
	case record.OpDIFInsert:
		difInsert(cmd, res)
	case record.OpDIFStrip:
		difStrip(cmd, res)
	case record.OpDIFUpdate:
		difUpdate(cmd, res)
	case record.OpCacheFlush:
		cacheFlush(cmd, res)
	default:
		res.Complete(record.StatusUnsupportedOpcode, 0)
	}
}

func view(addr uint64, n uint32) []byte {
	return memory.View(addr, n)
}

// predicate turns a result byte that does not match what the caller expects
// into a successful false predicate when the check result flag is set.
func predicate(cmd *record.Command, matched bool) record.Status {
	if cmd.Flags().Has(record.FlagCheckResult) && !matched {
		return record.StatusSuccessFalsePredicate
	}
	return record.StatusSuccess
}

// ExpectedResult reports whether result satisfies the expected result of a
// compare style command. For create_delta the expected result is a mask with
// one bit per acceptable result.
func ExpectedResult(cmd *record.Command, result uint8) bool {
	switch cmd.Opcode() {
	case record.OpCompare, record.OpComparePattern:
		return cmd.ExpectedResult() == result
	case record.OpCreateDelta:
		return cmd.ExpectedResultMask()&(1<<result) != 0
	}
	return true
}

// CompletePredicate completes res with result, applying the check result
// predicate of cmd.
func CompletePredicate(cmd *record.Command, res *record.Result, result uint8) {
	res.Complete(predicate(cmd, ExpectedResult(cmd, result)), result)
}
