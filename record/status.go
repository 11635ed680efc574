package record

// Status is the terminal code a producer writes into byte 0 of a [Result].
// Zero means the record has not completed yet.
type Status uint8

const (
	StatusNone                       Status = 0x00
	StatusSuccess                    Status = 0x01
	StatusSuccessFalsePredicate      Status = 0x02
	StatusPageFault                  Status = 0x03
	StatusPageResponseError          Status = 0x04
	StatusBatchFailed                Status = 0x05
	StatusBatchPageFault             Status = 0x06
	StatusBatchPageResponseError     Status = 0x07
	StatusDeltaOffsetOrder           Status = 0x08
	StatusDeltaOffsetRange           Status = 0x09
	StatusDIFError                   Status = 0x0a
	StatusUnsupportedOpcode          Status = 0x10
	StatusInvalidFlags               Status = 0x11
	StatusNonZeroReserved            Status = 0x12
	StatusInvalidTransferSize        Status = 0x13
	StatusInvalidDescriptorCount     Status = 0x14
	StatusInvalidDeltaRecordSize     Status = 0x15
	StatusOverlappingBuffers         Status = 0x16
	StatusDualcastMisaligned         Status = 0x17
	StatusMisalignedDescriptorList   Status = 0x18
	StatusInvalidInterruptHandle     Status = 0x19
	StatusCompletionRecordPageFault  Status = 0x1a
	StatusMisalignedCompletionRecord Status = 0x1b
	StatusMisalignedAddress          Status = 0x1c
	StatusPrivilegeError             Status = 0x1d
	StatusTrafficClassError          Status = 0x1e
	StatusReadbackTimeout            Status = 0x1f
	StatusHardwareTimeout            Status = 0x20
	StatusInvalidAddress             Status = 0x21
)

// StatusWriteFault is the direction bit the device ORs into page fault
// statuses when the faulting access was a write.
const StatusWriteFault Status = 0x80

// StatusMask strips [StatusWriteFault] from a status.
const StatusMask Status = 0x7f

var statusMap = map[Status]string{
	StatusNone:                       "not completed",
	StatusSuccess:                    "success",
	StatusSuccessFalsePredicate:      "success with false predicate",
	StatusPageFault:                  "page fault",
	StatusPageResponseError:          "page response error",
	StatusBatchFailed:                "batch failed",
	StatusBatchPageFault:             "batch page fault",
	StatusBatchPageResponseError:     "batch page response error",
	StatusDeltaOffsetOrder:           "delta offsets out of order",
	StatusDeltaOffsetRange:           "delta offset out of range",
	StatusDIFError:                   "dif error",
	StatusUnsupportedOpcode:          "unsupported opcode",
	StatusInvalidFlags:               "invalid flags",
	StatusNonZeroReserved:            "non-zero reserved field",
	StatusInvalidTransferSize:        "invalid transfer size",
	StatusInvalidDescriptorCount:     "invalid descriptor count",
	StatusInvalidDeltaRecordSize:     "invalid delta record size",
	StatusOverlappingBuffers:         "overlapping buffers",
	StatusDualcastMisaligned:         "dualcast destinations misaligned",
	StatusMisalignedDescriptorList:   "misaligned descriptor list",
	StatusInvalidInterruptHandle:     "invalid interrupt handle",
	StatusCompletionRecordPageFault:  "completion record page fault",
	StatusMisalignedCompletionRecord: "misaligned completion record",
	StatusMisalignedAddress:          "misaligned address",
	StatusPrivilegeError:             "privilege error",
	StatusTrafficClassError:          "traffic class configuration error",
	StatusReadbackTimeout:            "readback timeout",
	StatusHardwareTimeout:            "hardware timeout",
	StatusInvalidAddress:             "invalid address",
}

func (s Status) String() string {
	if n, ok := statusMap[s.Masked()]; ok {
		if s.Masked() == StatusPageFault && s&StatusWriteFault != 0 {
			return n + " (write)"
		}
		return n
	}
	return "unknown"
}

// Masked returns s without the fault direction bit.
func (s Status) Masked() Status {
	return s & StatusMask
}

// Completed reports whether s is a terminal value.
func (s Status) Completed() bool {
	return s != StatusNone
}

// Succeeded reports whether s is success or success with a false predicate.
func (s Status) Succeeded() bool {
	m := s.Masked()
	return m == StatusSuccess || m == StatusSuccessFalsePredicate
}

// IsPartial reports whether s is the page fault partial completion status,
// regardless of the fault direction.
func (s Status) IsPartial() bool {
	return s.Masked() == StatusPageFault
}

// Result codes written into byte 1 of a [Result].
const (
	ResultEqual    uint8 = 0
	ResultNotEqual uint8 = 1

	// ResultDeltaOverflow is reported by create_delta when the delta record
	// filled up before the sources were fully compared.
	ResultDeltaOverflow uint8 = 2

	// ResultDescending is reported by mem_move when the copy ran from the end
	// of the buffers towards the start because the destination overlapped the
	// tail of the source.
	ResultDescending uint8 = 1
)
