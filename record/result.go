package record

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Result is the 32-byte completion record a producer (the accelerator or a
// software kernel) fills in. Byte 0 doubles as the completion signal: it is
// written exactly once, last, by the single producer. All other fields are
// only meaningful after [Result.Status] has returned a non-zero value.
type Result [ResultSize]byte

// NewResult allocates a zeroed, 32-byte aligned result record.
func NewResult() *Result {
	return (*Result)(resultPool.get())
}

// Release returns a record made by [NewResult] for reuse. No producer may
// still own it.
func (r *Result) Release() {
	resultPool.put(unsafe.Pointer(r))
}

// Address returns the virtual address of r as the device sees it.
func (r *Result) Address() uint64 {
	return uint64(uintptr(unsafe.Pointer(r)))
}

// word is the naturally aligned 32-bit word holding the completion byte.
func (r *Result) word() *uint32 {
	return (*uint32)(unsafe.Pointer(&r[0]))
}

// Status atomically loads the completion byte. A non-zero value
// synchronizes with the producer's [Result.Complete], after which every
// other field can be read.
func (r *Result) Status() Status {
	return Status(atomic.LoadUint32(r.word()) >> statusShift)
}

// Completed reports whether a producer has finished with r.
func (r *Result) Completed() bool {
	return r.Status() != StatusNone
}

// Complete publishes status and the result byte. Every other field must have
// been written before this call; consumers may read them as soon as they
// observe the new status.
func (r *Result) Complete(status Status, result uint8) {
	if status == StatusNone {
		panic("a completion status must be non-zero")
	}
	reserved := binary.LittleEndian.Uint16(r[2:4])
	var w [4]byte
	w[0] = byte(status)
	w[1] = result
	binary.LittleEndian.PutUint16(w[2:4], reserved)
	atomic.StoreUint32(r.word(), *(*uint32)(unsafe.Pointer(&w[0])))
}

// Reset zeroes the record, including the completion byte, so it can be handed
// to a new producer.
func (r *Result) Reset() {
	atomic.StoreUint32(r.word(), 0)
	clear(r[4:])
}

// Result returns the operation result byte.
func (r *Result) Result() uint8 {
	return r[1]
}

// SetResult rewrites the result byte of a completed record; used when merging
// two completions into one.
func (r *Result) SetResult(v uint8) {
	r[1] = v
}

func (r *Result) BytesCompleted() uint32 {
	return binary.LittleEndian.Uint32(r[4:8])
}

func (r *Result) SetBytesCompleted(n uint32) {
	binary.LittleEndian.PutUint32(r[4:8], n)
}

func (r *Result) FaultAddress() uint64 {
	return binary.LittleEndian.Uint64(r[8:16])
}

func (r *Result) SetFaultAddress(a uint64) {
	binary.LittleEndian.PutUint64(r[8:16], a)
}

// Get reads an operation specific field of a record produced for op.
func (r *Result) Get(op Opcode, f Field) uint64 {
	return get(r[:], resultSlot(op, f))
}

// Set writes an operation specific field of a record produced for op.
func (r *Result) Set(op Opcode, f Field, v uint64) {
	if f == FieldStatus {
		panic("the status of a result is only written by Complete")
	}
	set(r[:], resultSlot(op, f), v)
}

func resultSlot(op Opcode, f Field) Slot {
	s, ok := ResultSlot(op, f)
	if !ok {
		panic(fmt.Sprintf("field %s does not exist for %s results", f, op))
	}
	return s
}

// DeltaRecordSize is the number of delta record bytes create_delta wrote.
func (r *Result) DeltaRecordSize() uint32 {
	return uint32(r.Get(OpCreateDelta, FieldResultDeltaRecordSize))
}

func (r *Result) SetDeltaRecordSize(n uint32) {
	r.Set(OpCreateDelta, FieldResultDeltaRecordSize, uint64(n))
}

// CRC is the checksum computed by crc and copy_crc.
func (r *Result) CRC() uint32 {
	return uint32(r.Get(OpCRC, FieldCRCValue))
}

func (r *Result) SetCRC(v uint32) {
	r.Set(OpCRC, FieldCRCValue, uint64(v))
}

// DIFTags is the DIF specific part of a result: the status bits and the tags
// the next block would carry.
type DIFTags struct {
	Status            uint8
	SourceRefTag      uint32
	DestinationRefTag uint32
	SourceAppTag      uint16
	DestinationAppTag uint16
}

func (r *Result) DIF() DIFTags {
	return DIFTags{
		Status:            uint8(r.Get(OpDIFCheck, FieldDIFStatus)),
		SourceRefTag:      uint32(r.Get(OpDIFCheck, FieldResultSourceRefTag)),
		DestinationRefTag: uint32(r.Get(OpDIFCheck, FieldResultDestinationRefTag)),
		SourceAppTag:      uint16(r.Get(OpDIFCheck, FieldResultSourceAppTag)),
		DestinationAppTag: uint16(r.Get(OpDIFCheck, FieldResultDestinationAppTag)),
	}
}

func (r *Result) SetDIF(t DIFTags) {
	r.Set(OpDIFCheck, FieldDIFStatus, uint64(t.Status))
	r.Set(OpDIFCheck, FieldResultSourceRefTag, uint64(t.SourceRefTag))
	r.Set(OpDIFCheck, FieldResultDestinationRefTag, uint64(t.DestinationRefTag))
	r.Set(OpDIFCheck, FieldResultSourceAppTag, uint64(t.SourceAppTag))
	r.Set(OpDIFCheck, FieldResultDestinationAppTag, uint64(t.DestinationAppTag))
}

// String creates a readable representation of the result header.
func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("status=%s result=%d completed=%d fault=%#x",
		r.Status(), r.Result(), r.BytesCompleted(), r.FaultAddress())
}
