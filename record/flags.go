package record

// Flags is the 16-bit general flag field shared by every [Command].
type Flags uint16

const (
	// FlagFence holds this descriptor until all earlier descriptors of the
	// same batch have completed.
	FlagFence Flags = 1 << iota
	// FlagBlockOnFault makes the device wait for a page fault to be resolved
	// instead of reporting a partial completion.
	FlagBlockOnFault
	// FlagCompletionRecordAddressValid marks the completion record address as
	// valid.
	FlagCompletionRecordAddressValid
	// FlagRequestCompletionRecord asks the device to write the completion
	// record when it is done.
	FlagRequestCompletionRecord
	// FlagRequestCompletionInterrupt asks the device for an interrupt on
	// completion. Never set by the engine, which polls.
	FlagRequestCompletionInterrupt
	// FlagCompletionRecordSteeringTag selects the steering tag for the
	// completion record write.
	FlagCompletionRecordSteeringTag
	_
	// FlagCheckResult turns a result that differs from the expected result
	// into [StatusSuccessFalsePredicate].
	FlagCheckResult
	// FlagCacheControl hints the device to leave destination writes in cache.
	FlagCacheControl
	FlagAddress1TrafficClass
	FlagAddress2TrafficClass
	FlagAddress3TrafficClass
	FlagCompletionRecordTrafficClass
	// FlagStrictOrdering forces destination writes to be globally observed in
	// order.
	FlagStrictOrdering
	// FlagDestinationReadback makes the device read back the destination
	// before reporting completion.
	FlagDestinationReadback
)

// completionFlags are the flags the engine owns on every hardware submission.
const completionFlags = FlagCompletionRecordAddressValid | FlagRequestCompletionRecord

// Has reports whether all bits of x are set in f.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

// Operation specific flags for crc and copy_crc.
const (
	// CRCBypassInversion disables the pre and post inversion of the CRC
	// register; the seed and the reported value are the raw register.
	CRCBypassInversion uint8 = 0x01
	// CRCBypassDataReflection processes data most significant bit first.
	CRCBypassDataReflection uint8 = 0x02
)

// Operation specific flags for cache_flush.
const (
	// CacheFlushInvalidate drops the lines instead of writing them back.
	CacheFlushInvalidate uint8 = 0x01
)

// DIF flags byte (offset 42 of DIF commands).
const (
	DIFBlockSizeMask   uint8 = 0x03
	DIFInvertCRCSeed   uint8 = 0x40
	DIFInvertCRCResult uint8 = 0x80
)

// DIFBlockSizes maps the two block size bits of the DIF flags byte to the
// number of data bytes protected by one 8-byte integrity footer.
var DIFBlockSizes = [4]uint32{512, 520, 4096, 4104}

// DIFFooterSize is the size of the integrity footer following each block.
const DIFFooterSize = 8

// Source DIF flags (offset 40) and destination DIF flags (offset 41) of DIF
// commands.
const (
	DIFSourceAppTagFDetect       uint8 = 0x04
	DIFSourceAppAndRefTagFDetect uint8 = 0x08
	DIFSourceAppTagIncrement     uint8 = 0x10
	DIFSourceGuardCheckDisable   uint8 = 0x20
	DIFSourceRefTagCheckDisable  uint8 = 0x40
	DIFSourceRefTagFixed         uint8 = 0x80

	DIFDestinationAppTagPassThrough uint8 = 0x08
	DIFDestinationAppTagIncrement   uint8 = 0x10
	DIFDestinationGuardPassThrough  uint8 = 0x20
	DIFDestinationRefTagPassThrough uint8 = 0x40
	DIFDestinationRefTagFixed       uint8 = 0x80
)

// DIF status bits reported in the result record of DIF operations.
const (
	DIFStatusGuardMismatch  uint8 = 0x01
	DIFStatusAppTagMismatch uint8 = 0x02
	DIFStatusRefTagMismatch uint8 = 0x04
)
