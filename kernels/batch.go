package kernels

import (
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/validate"
)

// RunBatch executes the descriptor list of a batch command in order. Every
// entry is validated on its own; an entry that fails validation is completed
// with the matching execution status and counts as failed. An entry carrying
// the fence flag is not started once an earlier entry failed, which also ends
// the batch. The batch itself reports the number of entries it executed and
// completes with batch failed when any of them did not succeed.
func RunBatch(cmd *record.Command, res *record.Result) {
	list := cmd.DescriptorList()
	count := cmd.DescriptorCount()
	scratch := record.NewResult()
	defer scratch.Release()

	failed := false
	executed := uint32(0)
	for i := range count {
		e := record.CommandAt(list + uint64(i)*record.CommandSize)
		if failed && e.Flags().Has(record.FlagFence) {
			break
		}

		r := scratch
		if e.Flags().Has(record.FlagCompletionRecordAddressValid | record.FlagRequestCompletionRecord) {
			r = record.ResultAt(e.CompletionRecordAddress())
		}
		r.Reset()

		if s := validate.CheckBatchEntry(e); s != validate.OK {
			r.Complete(s.Execution(), 0)
		} else {
			Run(e, r)
		}

		executed++
		if !r.Status().Succeeded() {
			failed = true
		}
	}

	res.SetBytesCompleted(executed)
	if failed {
		res.Complete(record.StatusBatchFailed, 0)
		return
	}
	res.Complete(record.StatusSuccess, 0)
}
