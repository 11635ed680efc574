package datamover

import (
	"math/bits"

	"github.com/slackhq/datamover/kernels"
	"github.com/slackhq/datamover/memory"
	"github.com/slackhq/datamover/record"
)

// continueCommand rewrites cmd in place to describe the work a partial
// completion left undone. It returns false for operations that can not be
// continued.
func continueCommand(cmd *record.Command, partial *record.Result) bool {
	k := partial.BytesCompleted()
	k64 := uint64(k)

	switch cmd.Opcode() {
	case record.OpNop, record.OpDrain, record.OpBatch:
		return false

	case record.OpMemMove:
		// A descending copy finished the tail, the head stays where it is.
		if partial.Result()&record.ResultDescending == 0 {
			cmd.SetSource(cmd.Source() + k64)
			cmd.SetDestination(cmd.Destination() + k64)
		}

	case record.OpFill:
		cmd.SetDestination(cmd.Destination() + k64)
		cmd.SetPattern(rotatePattern(cmd.Pattern(), k))

	case record.OpCompare:
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetSource2(cmd.Source2() + k64)

	case record.OpComparePattern:
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetPattern(rotatePattern(cmd.Pattern(), k))

	case record.OpCreateDelta:
		written := partial.DeltaRecordSize()
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetSource2(cmd.Source2() + k64)
		cmd.SetDeltaRecordAddress(cmd.DeltaRecordAddress() + uint64(written))
		cmd.SetDeltaRecordSize(cmd.DeltaRecordSize() - written)

	case record.OpApplyDelta:
		// Delta entries carry absolute offsets, only the record moves.
		cmd.SetDeltaRecordAddress(cmd.DeltaRecordAddress() + k64)
		cmd.SetDeltaRecordSize(cmd.DeltaRecordSize() - k)
		return true

	case record.OpDualcast:
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetDestination(cmd.Destination() + k64)
		cmd.SetDestination2(cmd.Destination2() + k64)

	case record.OpCRC:
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetCRCSeed(partial.CRC())

	case record.OpCopyCRC:
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetDestination(cmd.Destination() + k64)
		cmd.SetCRCSeed(partial.CRC())

	case record.OpCacheFlush:
		cmd.SetDestination(cmd.Destination() + k64)

	case record.OpDIFCheck:
		t := partial.DIF()
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetSourceTags(t.SourceRefTag, t.SourceAppTag)

	case record.OpDIFInsert:
		t := partial.DIF()
		bs := uint64(cmd.DIFBlockSize())
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetDestination(cmd.Destination() + k64/bs*(bs+record.DIFFooterSize))
		cmd.SetDestinationTags(t.DestinationRefTag, t.DestinationAppTag)

	case record.OpDIFStrip:
		t := partial.DIF()
		bs := uint64(cmd.DIFBlockSize())
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetDestination(cmd.Destination() + k64/(bs+record.DIFFooterSize)*bs)
		cmd.SetSourceTags(t.SourceRefTag, t.SourceAppTag)

	case record.OpDIFUpdate:
		t := partial.DIF()
		cmd.SetSource(cmd.Source() + k64)
		cmd.SetDestination(cmd.Destination() + k64)
		cmd.SetSourceTags(t.SourceRefTag, t.SourceAppTag)
		cmd.SetDestinationTags(t.DestinationRefTag, t.DestinationAppTag)

	default:
		return false
	}

	cmd.SetTransferSize(cmd.TransferSize() - k)
	return true
}

// rotatePattern returns the pattern that continues p k bytes into a region.
func rotatePattern(p uint64, k uint32) uint64 {
	return bits.RotateLeft64(p, -8*int(k%8))
}

// accumulate merges the partial completion into res, the completion of the
// continuation cmd now describes, so res reads as one completion of the
// original command.
func accumulate(cmd *record.Command, partial, res *record.Result) {
	res.SetBytesCompleted(partial.BytesCompleted() + res.BytesCompleted())

	switch cmd.Opcode() {
	case record.OpMemMove:
		res.SetResult(partial.Result() | res.Result())

	case record.OpCreateDelta:
		if !res.Status().Succeeded() {
			return
		}
		// Entries written by the continuation count words from where it
		// started.
		words := uint16(partial.BytesCompleted() / 8)
		kernels.RebaseDelta(memory.View(cmd.DeltaRecordAddress(), res.DeltaRecordSize()), words)
		res.SetDeltaRecordSize(partial.DeltaRecordSize() + res.DeltaRecordSize())

		result := res.Result()
		if result != record.ResultDeltaOverflow && res.DeltaRecordSize() > 0 {
			result = record.ResultNotEqual
		}
		kernels.CompletePredicate(cmd, res, result)
	}
}
