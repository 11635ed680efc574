package datamover

import (
	"context"
	"testing"
	"time"

	"github.com/slackhq/datamover/emulator"
	"github.com/slackhq/datamover/memory"
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alloc(t *testing.T, n int) *memory.Buffer {
	t.Helper()
	b, err := memory.Alloc(n)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Free() })
	for i := range b.Bytes() {
		b.Bytes()[i] = byte(i * 7)
	}
	return b
}

func emulated(t *testing.T, faults emulator.FaultPolicy) *emulator.Queue {
	t.Helper()
	q, err := emulator.New(test.NewLogger(), emulator.Options{NUMANode: -1, Faults: faults, Name: t.Name()})
	require.NoError(t, err)
	q.Start()
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func paths(t *testing.T, faults emulator.FaultPolicy) (*Hardware, *Automatic) {
	t.Helper()
	d := NewDispatcher(test.NewLogger(), emulated(t, faults))
	hw := NewHardware(d, WaitYield)
	return hw, NewAutomatic(hw, NewSoftware())
}

func memMove(src, dst uint64, n uint32) *record.Command {
	c := record.NewCommand(record.OpMemMove)
	c.SetSource(src)
	c.SetDestination(dst)
	c.SetTransferSize(n)
	return c
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSoftware(t *testing.T) {
	src, dst := alloc(t, 4096), alloc(t, 4096)
	clear(dst.Bytes())

	sw := NewSoftware()
	cmd, res := memMove(src.Addr(), dst.Addr(), 4096), record.NewResult()
	res.Complete(record.StatusDIFError, 9)
	require.Equal(t, SubmissionSuccess, sw.Submit(cmd, res))
	assert.True(t, sw.Poll(cmd, res))
	require.NoError(t, sw.Wait(context.Background(), cmd, res))
	assert.Equal(t, record.StatusSuccess, res.Status())
	assert.EqualValues(t, 4096, res.BytesCompleted())
	assert.Equal(t, src.Bytes(), dst.Bytes())
}

func TestHardware_Submit(t *testing.T) {
	hw, _ := paths(t, nil)
	src, dst := alloc(t, 4096), alloc(t, 4096)
	clear(dst.Bytes())

	cmd, res := memMove(src.Addr(), dst.Addr(), 4096), record.NewResult()
	cmd.SetFlags(record.FlagBlockOnFault)
	require.Equal(t, SubmissionSuccess, hw.Submit(cmd, res))
	assert.False(t, cmd.Flags().Has(record.FlagBlockOnFault))
	assert.Equal(t, res.Address(), cmd.CompletionRecordAddress())

	require.NoError(t, hw.Wait(waitCtx(t), cmd, res))
	assert.True(t, hw.Poll(cmd, res))
	assert.Equal(t, record.StatusSuccess, res.Status())
	assert.Equal(t, src.Bytes(), dst.Bytes())

	// Control operations keep block on fault.
	nop := record.NewCommand(record.OpNop)
	nop.SetFlags(record.FlagBlockOnFault)
	require.Equal(t, SubmissionSuccess, hw.SubmitNode(nop, res, 0))
	assert.True(t, nop.Flags().Has(record.FlagBlockOnFault))
	require.NoError(t, hw.Wait(waitCtx(t), nop, res))
}

func TestHardware_NoQueue(t *testing.T) {
	hw := NewHardware(NewDispatcher(test.NewLogger()), WaitBusy)
	cmd := record.NewCommand(record.OpNop)
	assert.Equal(t, SubmissionNoQueue, hw.Submit(cmd, record.NewResult()))

	hw = NewHardware(NewDispatcher(test.NewLogger(), &fakeQueue{err: ErrQueueBusy}), WaitBusy)
	assert.Equal(t, SubmissionQueueBusy, hw.SubmitNode(cmd, record.NewResult(), 0))
}

func TestHardware_ReportsPageFault(t *testing.T) {
	hw, _ := paths(t, emulator.FaultAfter(1000, true))
	src, dst := alloc(t, 4096), alloc(t, 4096)

	cmd, res := memMove(src.Addr(), dst.Addr(), 4096), record.NewResult()
	require.Equal(t, SubmissionSuccess, hw.Submit(cmd, res))
	require.NoError(t, hw.Wait(waitCtx(t), cmd, res))
	assert.Equal(t, record.StatusPageFault|record.StatusWriteFault, res.Status())
	assert.EqualValues(t, 1000, res.BytesCompleted())
	assert.Equal(t, dst.Addr()+1000, res.FaultAddress())
}

func TestAutomatic_FinishesPageFault(t *testing.T) {
	_, auto := paths(t, emulator.FaultAfter(1000, false))
	src, dst := alloc(t, 8192), alloc(t, 8192)
	clear(dst.Bytes())

	cmd, res := memMove(src.Addr(), dst.Addr(), 8192), record.NewResult()
	require.Equal(t, SubmissionSuccess, auto.Submit(cmd, res))
	require.NoError(t, auto.Wait(waitCtx(t), cmd, res))

	assert.Equal(t, record.StatusSuccess, res.Status())
	assert.EqualValues(t, 8192, res.BytesCompleted())
	assert.Zero(t, res.FaultAddress())
	assert.Equal(t, src.Bytes(), dst.Bytes())

	// The command now describes the continuation.
	assert.Equal(t, src.Addr()+1000, cmd.Source())
	assert.EqualValues(t, 8192-1000, cmd.TransferSize())
}

func TestAutomatic_Poll(t *testing.T) {
	_, auto := paths(t, emulator.FaultAfter(27, false))
	dst := alloc(t, 4096)

	cmd, res := record.NewCommand(record.OpFill), record.NewResult()
	cmd.SetPattern(0x0807060504030201)
	cmd.SetDestination(dst.At(1))
	cmd.SetTransferSize(4000)
	require.Equal(t, SubmissionSuccess, auto.Submit(cmd, res))

	require.Eventually(t, func() bool { return auto.Poll(cmd, res) }, 10*time.Second, time.Millisecond)
	assert.Equal(t, record.StatusSuccess, res.Status())
	assert.EqualValues(t, 4000, res.BytesCompleted())
	for i, b := range dst.Bytes()[1:4001] {
		require.Equal(t, byte(i%8+1), b, "byte %d", i)
	}

	// Polling a finished command again leaves it alone.
	assert.True(t, auto.Poll(cmd, res))
	assert.EqualValues(t, 4000, res.BytesCompleted())
}

func TestAutomatic_FallsBackToSoftware(t *testing.T) {
	d := NewDispatcher(test.NewLogger(), &fakeQueue{err: ErrQueueAbsent})
	hw := NewHardware(d, WaitBusy)
	auto := NewAutomatic(hw, NewSoftware())
	src, dst := alloc(t, 4096), alloc(t, 4096)
	clear(dst.Bytes())

	cmd, res := memMove(src.Addr(), dst.Addr(), 4096), record.NewResult()
	require.Equal(t, SubmissionSuccess, auto.Submit(cmd, res))
	assert.True(t, res.Completed())
	require.NoError(t, auto.Wait(context.Background(), cmd, res))
	assert.Equal(t, record.StatusSuccess, res.Status())
	assert.Equal(t, src.Bytes(), dst.Bytes())
}

func TestWait_Context(t *testing.T) {
	hw := NewHardware(NewDispatcher(test.NewLogger(), &fakeQueue{node: -1}), WaitYield)
	cmd, res := record.NewCommand(record.OpNop), record.NewResult()
	require.Equal(t, SubmissionSuccess, hw.Submit(cmd, res))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hw.Wait(ctx, cmd, res), context.DeadlineExceeded)
	assert.False(t, hw.Poll(cmd, res))

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	busy := NewHardware(hw.d, WaitBusy)
	assert.ErrorIs(t, busy.Wait(ctx, cmd, res), context.Canceled)
}

func TestParseModes(t *testing.T) {
	m, err := ParseWaitMode("BUSY")
	require.NoError(t, err)
	assert.Equal(t, WaitBusy, m)
	m, err = ParseWaitMode("")
	require.NoError(t, err)
	assert.Equal(t, WaitYield, m)
	_, err = ParseWaitMode("sleep")
	assert.Error(t, err)

	k, err := ParsePathKind("hardware")
	require.NoError(t, err)
	assert.Equal(t, PathHardware, k)
	assert.Equal(t, "software", PathSoftware.String())
	_, err = ParsePathKind("gpu")
	assert.Error(t, err)
}
