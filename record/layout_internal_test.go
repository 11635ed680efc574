package record

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Size(t *testing.T) {
	assert.EqualValues(t, CommandSize, unsafe.Sizeof(Command{}))
	assert.EqualValues(t, ResultSize, unsafe.Sizeof(Result{}))
}

func TestNewCommand_Alignment(t *testing.T) {
	for range 32 {
		c := NewCommand(OpMemMove)
		assert.Zero(t, c.Address()%CommandAlignment)
		assert.Equal(t, OpMemMove, c.Opcode())

		r := NewResult()
		assert.Zero(t, r.Address()%ResultAlignment)
	}

	list := NewCommandList(5)
	require.Len(t, list, 5)
	assert.Zero(t, list[0].Address()%CommandAlignment)
	assert.Equal(t, list[0].Address()+CommandSize, list[1].Address())
}

func TestCommand_HeaderLayout(t *testing.T) {
	c := NewCommand(OpMemMove)
	c.SetFlags(0x0102)
	c.SetOpFlags(0x03)
	c.SetCompletionRecordAddress(0x1112131415161718)
	c.SetSource(0x2122232425262728)
	c.SetDestination(0x3132333435363738)
	c.SetTransferSize(0x41424344)
	c.Set(FieldInterruptHandle, 0x51525354)

	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x00,
		0x02, 0x01, 0x03, 0x03,
		0x18, 0x17, 0x16, 0x15, 0x14, 0x13, 0x12, 0x11,
		0x28, 0x27, 0x26, 0x25, 0x24, 0x23, 0x22, 0x21,
		0x38, 0x37, 0x36, 0x35, 0x34, 0x33, 0x32, 0x31,
		0x44, 0x43, 0x42, 0x41,
		0x54, 0x53, 0x52, 0x51,
	}, c[:40])
	assert.Equal(t, make([]byte, 24), c[40:])
}

func TestCommand_OperationLayouts(t *testing.T) {
	tests := []struct {
		op     Opcode
		field  Field
		offset int
		width  int
	}{
		{OpFill, FieldPattern, 16, 8},
		{OpFill, FieldDestination, 24, 8},
		{OpBatch, FieldDescriptorList, 16, 8},
		{OpBatch, FieldDescriptorCount, 32, 4},
		{OpCompare, FieldSource2, 24, 8},
		{OpCompare, FieldExpectedResult, 40, 1},
		{OpComparePattern, FieldPattern, 24, 8},
		{OpCreateDelta, FieldSource2, 24, 8},
		{OpCreateDelta, FieldDeltaRecordAddress, 40, 8},
		{OpCreateDelta, FieldDeltaRecordSize, 48, 4},
		{OpCreateDelta, FieldExpectedResultMask, 56, 1},
		{OpApplyDelta, FieldDestination, 24, 8},
		{OpApplyDelta, FieldDeltaRecordAddress, 40, 8},
		{OpApplyDelta, FieldDeltaRecordSize, 48, 4},
		{OpDualcast, FieldDestination2, 40, 8},
		{OpCRC, FieldCRCSeed, 40, 4},
		{OpCopyCRC, FieldCRCSeed, 40, 4},
		{OpCopyCRC, FieldCRCSeedAddress, 48, 8},
		{OpDIFCheck, FieldSourceDIFFlags, 40, 1},
		{OpDIFCheck, FieldDIFFlags, 42, 1},
		{OpDIFCheck, FieldSourceRefTag, 48, 4},
		{OpDIFCheck, FieldSourceAppTagMask, 52, 2},
		{OpDIFCheck, FieldSourceAppTag, 54, 2},
		{OpDIFInsert, FieldDestinationDIFFlags, 41, 1},
		{OpDIFInsert, FieldDestinationRefTag, 56, 4},
		{OpDIFInsert, FieldDestinationAppTagMask, 60, 2},
		{OpDIFInsert, FieldDestinationAppTag, 62, 2},
		{OpDIFUpdate, FieldSourceRefTag, 48, 4},
		{OpDIFUpdate, FieldDestinationRefTag, 56, 4},
		{OpCacheFlush, FieldDestination, 24, 8},
	}
	for _, tt := range tests {
		t.Run(tt.op.String()+"/"+tt.field.String(), func(t *testing.T) {
			s, ok := CommandSlot(tt.op, tt.field)
			require.True(t, ok)
			assert.Equal(t, Slot{Offset: tt.offset, Width: tt.width}, s)

			c := NewCommand(tt.op)
			c.Set(tt.field, 0xa1a2a3a4a5a6a7a8)
			expected := make([]byte, CommandSize)
			expected[7] = byte(tt.op)
			for i := range tt.width {
				expected[tt.offset+i] = byte(0xa8 - i)
			}
			assert.Equal(t, expected, c[:])
		})
	}
}

func TestCommand_FieldsDoNotOverlap(t *testing.T) {
	for _, op := range Opcodes {
		var used [CommandSize]Field
		for i := range used {
			used[i] = numFields
		}
		for _, f := range CommandFields(op) {
			s, _ := CommandSlot(op, f)
			for i := s.Offset; i < s.Offset+s.Width; i++ {
				if used[i] != numFields && used[i] != f {
					t.Fatalf("%s: %s overlaps %s at byte %d", op, f, used[i], i)
				}
				used[i] = f
			}
		}
	}
}

func TestCommand_MissingFieldPanics(t *testing.T) {
	c := NewCommand(OpFill)
	assert.Panics(t, func() { c.Source() })
	assert.Panics(t, func() { c.Set(FieldOpcode, 1) })
	assert.False(t, c.Has(FieldSource))
	assert.True(t, c.Has(FieldPattern))
}

func TestCommand_UnknownOpcodeHasHeader(t *testing.T) {
	c := NewCommand(Opcode(0x7e))
	assert.True(t, c.Has(FieldFlags))
	assert.False(t, c.Has(FieldSource))
	assert.Equal(t, "unknown", c.Opcode().String())
}

func TestResult_Layout(t *testing.T) {
	r := NewResult()
	r.SetBytesCompleted(0x01020304)
	r.SetFaultAddress(0x1112131415161718)
	r.SetCRC(0x21222324)
	r.Complete(StatusPageFault|StatusWriteFault, 0x01)

	assert.Equal(t, []byte{
		0x83, 0x01, 0x00, 0x00,
		0x04, 0x03, 0x02, 0x01,
		0x18, 0x17, 0x16, 0x15, 0x14, 0x13, 0x12, 0x11,
		0x24, 0x23, 0x22, 0x21,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}, r[:])

	assert.True(t, r.Status().IsPartial())
	assert.Equal(t, StatusPageFault, r.Status().Masked())
}

func TestResult_DIFLayout(t *testing.T) {
	r := NewResult()
	r.SetDIF(DIFTags{
		Status:            0x05,
		SourceRefTag:      0x11121314,
		DestinationRefTag: 0x21222324,
		SourceAppTag:      0x3132,
		DestinationAppTag: 0x4142,
	})
	assert.Equal(t, []byte{
		0x05, 0x00, 0x00, 0x00,
		0x14, 0x13, 0x12, 0x11,
		0x24, 0x23, 0x22, 0x21,
		0x32, 0x31,
		0x42, 0x41,
	}, r[16:])

	s, ok := ResultSlot(OpCreateDelta, FieldResultDeltaRecordSize)
	require.True(t, ok)
	assert.Equal(t, Slot{Offset: 16, Width: 4}, s)

	_, ok = ResultSlot(OpMemMove, FieldCRCValue)
	assert.False(t, ok)
}

func TestResult_ResetAndComplete(t *testing.T) {
	r := NewResult()
	assert.False(t, r.Completed())
	r.SetBytesCompleted(10)
	r.Complete(StatusSuccess, ResultNotEqual)
	assert.True(t, r.Completed())
	assert.Equal(t, StatusSuccess, r.Status())
	assert.Equal(t, ResultNotEqual, r.Result())

	r.Reset()
	assert.Equal(t, make([]byte, ResultSize), r[:])
	assert.Panics(t, func() { r.Complete(StatusNone, 0) })
}

func TestCommand_RequestCompletion(t *testing.T) {
	c := NewCommand(OpNop)
	r := NewResult()
	c.RequestCompletion(r)
	assert.Equal(t, r.Address(), c.CompletionRecordAddress())
	assert.True(t, c.Flags().Has(FlagCompletionRecordAddressValid|FlagRequestCompletionRecord))
	assert.Same(t, r, ResultAt(c.CompletionRecordAddress()))
}

func TestCommand_EncodeParse(t *testing.T) {
	c := NewCommand(OpDualcast)
	c.SetDestination2(0x4000)
	b := c.Encode(make([]byte, 128))
	require.Len(t, b, CommandSize)

	var p Command
	require.NoError(t, p.Parse(b))
	assert.Equal(t, *c, p)
	assert.ErrorIs(t, p.Parse(b[:10]), ErrRecordTooShort)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "page fault (write)", (StatusPageFault | StatusWriteFault).String())
	assert.Equal(t, "unknown", Status(0x55).String())
	assert.True(t, StatusSuccessFalsePredicate.Succeeded())
	assert.False(t, StatusDIFError.Succeeded())
}
