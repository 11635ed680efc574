package record

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Command is one 64-byte unit of work, laid out exactly as the accelerator
// reads it from a work queue portal. Use [NewCommand] to get a correctly
// aligned instance; a Command embedded in other memory must be 64-byte
// aligned before it is submitted to hardware.
type Command [CommandSize]byte

// NewCommand allocates a zeroed, 64-byte aligned command for op.
func NewCommand(op Opcode) *Command {
	c := (*Command)(commandPool.get())
	c[7] = byte(op)
	return c
}

// Release returns a command made by [NewCommand] for reuse. It panics for a
// command from anywhere else.
func (c *Command) Release() {
	commandPool.put(unsafe.Pointer(c))
}

// Init zeroes c and assigns op. It is the only way to change the opcode of an
// existing record and must not be used on a record that is in flight.
func (c *Command) Init(op Opcode) {
	*c = Command{}
	c[7] = byte(op)
}

// Address returns the virtual address of c as the device sees it.
func (c *Command) Address() uint64 {
	return uint64(uintptr(unsafe.Pointer(c)))
}

// Opcode returns the operation this command describes.
func (c *Command) Opcode() Opcode {
	return Opcode(c[7])
}

// Get reads f. It panics when f does not exist for the command's opcode.
func (c *Command) Get(f Field) uint64 {
	return get(c[:], c.slot(f))
}

// Set writes f. It panics when f does not exist for the command's opcode or
// when f is the opcode.
func (c *Command) Set(f Field, v uint64) {
	if f == FieldOpcode {
		panic("the opcode of a command can only be assigned by Init")
	}
	set(c[:], c.slot(f), v)
}

// Has reports whether f exists for the command's opcode.
func (c *Command) Has(f Field) bool {
	_, ok := CommandSlot(c.Opcode(), f)
	return ok
}

func (c *Command) slot(f Field) Slot {
	s, ok := CommandSlot(c.Opcode(), f)
	if !ok {
		panic(fmt.Sprintf("field %s does not exist for %s commands", f, c.Opcode()))
	}
	return s
}

func (c *Command) Flags() Flags {
	return Flags(binary.LittleEndian.Uint16(c[4:6]))
}

func (c *Command) SetFlags(f Flags) {
	binary.LittleEndian.PutUint16(c[4:6], uint16(f))
}

func (c *Command) OpFlags() uint8 {
	return c[6]
}

func (c *Command) SetOpFlags(f uint8) {
	c[6] = f
}

func (c *Command) TransferSize() uint32 {
	return binary.LittleEndian.Uint32(c[32:36])
}

func (c *Command) SetTransferSize(n uint32) {
	binary.LittleEndian.PutUint32(c[32:36], n)
}

func (c *Command) CompletionRecordAddress() uint64 {
	return binary.LittleEndian.Uint64(c[8:16])
}

func (c *Command) SetCompletionRecordAddress(a uint64) {
	binary.LittleEndian.PutUint64(c[8:16], a)
}

// RequestCompletion points c at r and sets both completion record flags.
func (c *Command) RequestCompletion(r *Result) {
	c.SetCompletionRecordAddress(r.Address())
	c.SetFlags(c.Flags() | completionFlags)
}

func (c *Command) Source() uint64 {
	return c.Get(FieldSource)
}

func (c *Command) SetSource(a uint64) {
	c.Set(FieldSource, a)
}

func (c *Command) Source2() uint64 {
	return c.Get(FieldSource2)
}

func (c *Command) SetSource2(a uint64) {
	c.Set(FieldSource2, a)
}

func (c *Command) Destination() uint64 {
	return c.Get(FieldDestination)
}

func (c *Command) SetDestination(a uint64) {
	c.Set(FieldDestination, a)
}

func (c *Command) Destination2() uint64 {
	return c.Get(FieldDestination2)
}

func (c *Command) SetDestination2(a uint64) {
	c.Set(FieldDestination2, a)
}

// Pattern is the 8-byte pattern of fill and compare_pattern. Byte i of the
// pattern lands on every address congruent to i modulo 8 from the start.
func (c *Command) Pattern() uint64 {
	return c.Get(FieldPattern)
}

func (c *Command) SetPattern(p uint64) {
	c.Set(FieldPattern, p)
}

func (c *Command) DescriptorList() uint64 {
	return c.Get(FieldDescriptorList)
}

func (c *Command) DescriptorCount() uint32 {
	return uint32(c.Get(FieldDescriptorCount))
}

func (c *Command) SetBatch(list uint64, count uint32) {
	c.Set(FieldDescriptorList, list)
	c.Set(FieldDescriptorCount, uint64(count))
}

func (c *Command) CRCSeed() uint32 {
	return uint32(c.Get(FieldCRCSeed))
}

func (c *Command) SetCRCSeed(s uint32) {
	c.Set(FieldCRCSeed, uint64(s))
}

func (c *Command) ExpectedResult() uint8 {
	return uint8(c.Get(FieldExpectedResult))
}

func (c *Command) SetExpectedResult(r uint8) {
	c.Set(FieldExpectedResult, uint64(r))
}

func (c *Command) ExpectedResultMask() uint8 {
	return uint8(c.Get(FieldExpectedResultMask))
}

func (c *Command) SetExpectedResultMask(m uint8) {
	c.Set(FieldExpectedResultMask, uint64(m))
}

func (c *Command) DeltaRecordAddress() uint64 {
	return c.Get(FieldDeltaRecordAddress)
}

func (c *Command) SetDeltaRecordAddress(a uint64) {
	c.Set(FieldDeltaRecordAddress, a)
}

// DeltaRecordSize is the delta record capacity for create_delta and the
// number of delta bytes to apply for apply_delta.
func (c *Command) DeltaRecordSize() uint32 {
	return uint32(c.Get(FieldDeltaRecordSize))
}

func (c *Command) SetDeltaRecordSize(n uint32) {
	c.Set(FieldDeltaRecordSize, uint64(n))
}

func (c *Command) DIFFlags() uint8 {
	return uint8(c.Get(FieldDIFFlags))
}

// DIFBlockSize returns the protected block size selected by the DIF flags.
func (c *Command) DIFBlockSize() uint32 {
	return DIFBlockSizes[c.DIFFlags()&DIFBlockSizeMask]
}

func (c *Command) SourceDIFFlags() uint8 {
	return uint8(c.Get(FieldSourceDIFFlags))
}

func (c *Command) DestinationDIFFlags() uint8 {
	return uint8(c.Get(FieldDestinationDIFFlags))
}

func (c *Command) SourceRefTag() uint32 {
	return uint32(c.Get(FieldSourceRefTag))
}

func (c *Command) SourceAppTag() uint16 {
	return uint16(c.Get(FieldSourceAppTag))
}

func (c *Command) SourceAppTagMask() uint16 {
	return uint16(c.Get(FieldSourceAppTagMask))
}

func (c *Command) DestinationRefTag() uint32 {
	return uint32(c.Get(FieldDestinationRefTag))
}

func (c *Command) DestinationAppTag() uint16 {
	return uint16(c.Get(FieldDestinationAppTag))
}

// SetSourceDIF sets the source side integrity parameters.
func (c *Command) SetSourceDIF(flags uint8, refTag uint32, appTag, appTagMask uint16) {
	c.Set(FieldSourceDIFFlags, uint64(flags))
	c.Set(FieldSourceRefTag, uint64(refTag))
	c.Set(FieldSourceAppTag, uint64(appTag))
	c.Set(FieldSourceAppTagMask, uint64(appTagMask))
}

// SetDestinationDIF sets the destination side integrity parameters.
func (c *Command) SetDestinationDIF(flags uint8, refTag uint32, appTag, appTagMask uint16) {
	c.Set(FieldDestinationDIFFlags, uint64(flags))
	c.Set(FieldDestinationRefTag, uint64(refTag))
	c.Set(FieldDestinationAppTag, uint64(appTag))
	c.Set(FieldDestinationAppTagMask, uint64(appTagMask))
}

func (c *Command) SetDIFFlags(f uint8) {
	c.Set(FieldDIFFlags, uint64(f))
}

func (c *Command) SetSourceTags(refTag uint32, appTag uint16) {
	c.Set(FieldSourceRefTag, uint64(refTag))
	c.Set(FieldSourceAppTag, uint64(appTag))
}

func (c *Command) SetDestinationTags(refTag uint32, appTag uint16) {
	c.Set(FieldDestinationRefTag, uint64(refTag))
	c.Set(FieldDestinationAppTag, uint64(appTag))
}

// String creates a readable representation of the command header.
func (c *Command) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("op=%s flags=%#04x opflags=%#02x completion=%#x size=%d",
		c.Opcode(), uint16(c.Flags()), c.OpFlags(), c.CompletionRecordAddress(), c.TransferSize())
}

func get(b []byte, s Slot) uint64 {
	p := b[s.Offset : s.Offset+s.Width]
	switch s.Width {
	case 1:
		return uint64(p[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(p))
	case 4:
		return uint64(binary.LittleEndian.Uint32(p))
	case 8:
		return binary.LittleEndian.Uint64(p)
	}
	panic(fmt.Sprintf("unsupported field width %d", s.Width))
}

func set(b []byte, s Slot, v uint64) {
	p := b[s.Offset : s.Offset+s.Width]
	switch s.Width {
	case 1:
		p[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(p, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(p, v)
	default:
		panic(fmt.Sprintf("unsupported field width %d", s.Width))
	}
}
