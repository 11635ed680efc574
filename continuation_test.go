package datamover

import (
	"testing"

	"github.com/slackhq/datamover/emulator"
	"github.com/slackhq/datamover/kernels"
	"github.com/slackhq/datamover/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partialResult(k uint32, result uint8) *record.Result {
	r := record.NewResult()
	r.SetBytesCompleted(k)
	r.Complete(record.StatusPageFault, result)
	return r
}

func TestContinueCommand_MemMove(t *testing.T) {
	cmd := memMove(0x1000, 0x9000, 4096)
	require.True(t, continueCommand(cmd, partialResult(100, 0)))
	assert.EqualValues(t, 0x1000+100, cmd.Source())
	assert.EqualValues(t, 0x9000+100, cmd.Destination())
	assert.EqualValues(t, 4096-100, cmd.TransferSize())

	// A descending copy completed the tail.
	cmd = memMove(0x1000, 0x1800, 4096)
	require.True(t, continueCommand(cmd, partialResult(100, record.ResultDescending)))
	assert.EqualValues(t, 0x1000, cmd.Source())
	assert.EqualValues(t, 0x1800, cmd.Destination())
	assert.EqualValues(t, 4096-100, cmd.TransferSize())
}

func TestContinueCommand_Pattern(t *testing.T) {
	const p = 0x8877665544332211
	cmd := record.NewCommand(record.OpFill)
	cmd.SetPattern(p)
	cmd.SetDestination(0x2000)
	cmd.SetTransferSize(64)
	require.True(t, continueCommand(cmd, partialResult(11, 0)))

	assert.EqualValues(t, 0x2000+11, cmd.Destination())
	for j := range uint32(16) {
		assert.Equal(t, kernels.PatternByte(p, 11+j), kernels.PatternByte(cmd.Pattern(), j))
	}
}

func TestContinueCommand_CRC(t *testing.T) {
	cmd := record.NewCommand(record.OpCopyCRC)
	cmd.SetSource(0x1000)
	cmd.SetDestination(0x5000)
	cmd.SetTransferSize(300)
	cmd.SetCRCSeed(1)

	partial := record.NewResult()
	partial.SetBytesCompleted(200)
	partial.SetCRC(0xdeadbeef)
	partial.Complete(record.StatusPageFault, 0)

	require.True(t, continueCommand(cmd, partial))
	assert.EqualValues(t, 0x1000+200, cmd.Source())
	assert.EqualValues(t, 0x5000+200, cmd.Destination())
	assert.EqualValues(t, 100, cmd.TransferSize())
	assert.EqualValues(t, 0xdeadbeef, cmd.CRCSeed())
}

func TestContinueCommand_Delta(t *testing.T) {
	cmd := record.NewCommand(record.OpCreateDelta)
	cmd.SetSource(0x1000)
	cmd.SetSource2(0x3000)
	cmd.SetTransferSize(4096)
	cmd.SetDeltaRecordAddress(0x8000)
	cmd.SetDeltaRecordSize(800)

	partial := record.NewResult()
	partial.SetBytesCompleted(1024)
	partial.SetDeltaRecordSize(30)
	partial.Complete(record.StatusPageFault, record.ResultNotEqual)

	require.True(t, continueCommand(cmd, partial))
	assert.EqualValues(t, 0x1000+1024, cmd.Source())
	assert.EqualValues(t, 0x3000+1024, cmd.Source2())
	assert.EqualValues(t, 4096-1024, cmd.TransferSize())
	assert.EqualValues(t, 0x8000+30, cmd.DeltaRecordAddress())
	assert.EqualValues(t, 800-30, cmd.DeltaRecordSize())

	apply := record.NewCommand(record.OpApplyDelta)
	apply.SetDestination(0x1000)
	apply.SetTransferSize(4096)
	apply.SetDeltaRecordAddress(0x8000)
	apply.SetDeltaRecordSize(100)
	require.True(t, continueCommand(apply, partialResult(40, 0)))
	assert.EqualValues(t, 0x1000, apply.Destination())
	assert.EqualValues(t, 4096, apply.TransferSize())
	assert.EqualValues(t, 0x8000+40, apply.DeltaRecordAddress())
	assert.EqualValues(t, 60, apply.DeltaRecordSize())
}

func TestContinueCommand_DIF(t *testing.T) {
	partial := record.NewResult()
	partial.SetBytesCompleted(2 * 512)
	partial.SetDIF(record.DIFTags{SourceRefTag: 12, SourceAppTag: 3, DestinationRefTag: 22, DestinationAppTag: 5})
	partial.Complete(record.StatusPageFault, 0)

	insert := record.NewCommand(record.OpDIFInsert)
	insert.SetSource(0x10000)
	insert.SetDestination(0x20000)
	insert.SetTransferSize(4 * 512)
	require.True(t, continueCommand(insert, partial))
	assert.EqualValues(t, 0x10000+2*512, insert.Source())
	assert.EqualValues(t, 0x20000+2*520, insert.Destination())
	assert.EqualValues(t, 2*512, insert.TransferSize())
	assert.EqualValues(t, 22, insert.DestinationRefTag())
	assert.EqualValues(t, 5, insert.DestinationAppTag())

	partial.SetBytesCompleted(2 * 520)
	strip := record.NewCommand(record.OpDIFStrip)
	strip.SetSource(0x10000)
	strip.SetDestination(0x20000)
	strip.SetTransferSize(4 * 520)
	require.True(t, continueCommand(strip, partial))
	assert.EqualValues(t, 0x10000+2*520, strip.Source())
	assert.EqualValues(t, 0x20000+2*512, strip.Destination())
	assert.EqualValues(t, 12, strip.SourceRefTag())
	assert.EqualValues(t, 3, strip.SourceAppTag())

	update := record.NewCommand(record.OpDIFUpdate)
	update.SetSource(0x10000)
	update.SetDestination(0x20000)
	update.SetTransferSize(4 * 520)
	require.True(t, continueCommand(update, partial))
	assert.EqualValues(t, 0x20000+2*520, update.Destination())
	assert.EqualValues(t, 12, update.SourceRefTag())
	assert.EqualValues(t, 22, update.DestinationRefTag())
}

func TestContinueCommand_Control(t *testing.T) {
	for _, op := range []record.Opcode{record.OpNop, record.OpDrain, record.OpBatch, record.Opcode(0x7f)} {
		assert.False(t, continueCommand(record.NewCommand(op), partialResult(1, 0)), op.String())
	}
}

func createDeltaCommand(a, b, delta uint64, n, capacity uint32) *record.Command {
	cmd := record.NewCommand(record.OpCreateDelta)
	cmd.SetSource(a)
	cmd.SetSource2(b)
	cmd.SetTransferSize(n)
	cmd.SetDeltaRecordAddress(delta)
	cmd.SetDeltaRecordSize(capacity)
	return cmd
}

func TestAutomatic_CreateDeltaAccumulates(t *testing.T) {
	const n = 4096
	tests := []struct {
		name    string
		changed []int
		mask    uint8
		status  record.Status
		result  uint8
		words   []uint16
	}{
		{"both parts", []int{0, 3200}, 1 << record.ResultNotEqual, record.StatusSuccess, record.ResultNotEqual, []uint16{0, 400}},
		{"continuation only", []int{3201}, 1 << record.ResultNotEqual, record.StatusSuccess, record.ResultNotEqual, []uint16{400}},
		{"prefix only", []int{9}, 1 << record.ResultEqual, record.StatusSuccessFalsePredicate, record.ResultNotEqual, []uint16{1}},
		{"equal", nil, 1 << record.ResultEqual, record.StatusSuccess, record.ResultEqual, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, auto := paths(t, emulator.FaultAfter(1600, false))
			a, b, delta := alloc(t, n), alloc(t, n), alloc(t, n/8*10)
			for _, i := range tt.changed {
				b.Bytes()[i] ^= 0xff
			}

			cmd := createDeltaCommand(a.Addr(), b.Addr(), delta.Addr(), n, n/8*10)
			cmd.SetFlags(record.FlagCheckResult)
			cmd.SetExpectedResultMask(tt.mask)
			res := record.NewResult()
			require.Equal(t, SubmissionSuccess, auto.Submit(cmd, res))
			require.NoError(t, auto.Wait(waitCtx(t), cmd, res))

			assert.Equal(t, tt.status, res.Status())
			assert.Equal(t, tt.result, res.Result())
			assert.EqualValues(t, n, res.BytesCompleted())
			require.EqualValues(t, len(tt.words)*10, res.DeltaRecordSize())

			var words []uint16
			for _, e := range kernels.DeltaEntries(delta.Bytes()[:res.DeltaRecordSize()]) {
				words = append(words, e.Word)
			}
			assert.Equal(t, tt.words, words)
		})
	}
}

func TestAutomatic_CreateDeltaOverflow(t *testing.T) {
	const n = 4096
	_, auto := paths(t, emulator.FaultAfter(800, false))
	a, b, delta := alloc(t, n), alloc(t, n), alloc(t, 80)
	for i := 0; i < n; i += 256 {
		b.Bytes()[i] ^= 0xff
	}

	cmd := createDeltaCommand(a.Addr(), b.Addr(), delta.Addr(), n, 80)
	res := record.NewResult()
	require.Equal(t, SubmissionSuccess, auto.Submit(cmd, res))
	require.NoError(t, auto.Wait(waitCtx(t), cmd, res))

	want := record.NewResult()
	NewSoftware().Submit(createDeltaCommand(a.Addr(), b.Addr(), alloc(t, 80).Addr(), n, 80), want)
	assert.Equal(t, record.ResultDeltaOverflow, res.Result())
	assert.Equal(t, want.String(), res.String())
	assert.Equal(t, want.DeltaRecordSize(), res.DeltaRecordSize())
	assert.EqualValues(t, 8*256, res.BytesCompleted())
}
