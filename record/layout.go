package record

import "fmt"

// Command record, common header:
//
//	0                                                                      31
//	|-----------------------------------------------------------------------|
//	|                    Reserved (PASID, uint32)                            | 0
//	|-----------------------------------------------------------------------|
//	|     Flags (uint16)      | Op flags (uint8) |    Opcode (uint8)          | 4
//	|-----------------------------------------------------------------------|
//	|                 Completion record address (uint64)                     | 8
//	|-----------------------------------------------------------------------|
//	|                       Source address (uint64)                          | 16
//	|-----------------------------------------------------------------------|
//	|                     Destination address (uint64)                       | 24
//	|-----------------------------------------------------------------------|
//	|                       Transfer size (uint32)                           | 32
//	|-----------------------------------------------------------------------|
//	|                Completion interrupt handle (uint32)                    | 36
//	|-----------------------------------------------------------------------|
//	|                   operation specific, 24 bytes                         | 40
//
// Result record, common header:
//
//	|  Status (uint8)  |  Result (uint8)  |       Reserved (uint16)          | 0
//	|                      Bytes completed (uint32)                          | 4
//	|                       Fault address (uint64)                           | 8
//	|                   operation specific, 16 bytes                         | 16

const (
	CommandSize      = 64
	CommandAlignment = 64
	ResultSize       = 32
	ResultAlignment  = 32
)

// Field names a value stored in a record. Where a field lives depends on the
// record kind and, past the common header, on the opcode.
type Field uint8

const (
	// Command fields.
	FieldFlags Field = iota
	FieldOpFlags
	FieldOpcode
	FieldCompletionRecordAddress
	FieldSource
	FieldDestination
	FieldTransferSize
	FieldInterruptHandle
	FieldPattern
	FieldSource2
	FieldDestination2
	FieldDescriptorList
	FieldDescriptorCount
	FieldCRCSeed
	FieldCRCSeedAddress
	FieldExpectedResult
	FieldExpectedResultMask
	FieldDeltaRecordAddress
	FieldDeltaRecordSize
	FieldSourceDIFFlags
	FieldDestinationDIFFlags
	FieldDIFFlags
	FieldSourceRefTag
	FieldSourceAppTagMask
	FieldSourceAppTag
	FieldDestinationRefTag
	FieldDestinationAppTagMask
	FieldDestinationAppTag

	// Result fields.
	FieldStatus
	FieldResult
	FieldBytesCompleted
	FieldFaultAddress
	FieldResultDeltaRecordSize
	FieldCRCValue
	FieldDIFStatus
	FieldResultSourceRefTag
	FieldResultDestinationRefTag
	FieldResultSourceAppTag
	FieldResultDestinationAppTag

	numFields
)

var fieldNames = [numFields]string{
	FieldFlags:                   "flags",
	FieldOpFlags:                 "op_flags",
	FieldOpcode:                  "opcode",
	FieldCompletionRecordAddress: "completion_record_address",
	FieldSource:                  "source",
	FieldDestination:             "destination",
	FieldTransferSize:            "transfer_size",
	FieldInterruptHandle:         "completion_interrupt_handle",
	FieldPattern:                 "pattern",
	FieldSource2:                 "source2",
	FieldDestination2:            "destination2",
	FieldDescriptorList:          "descriptor_list",
	FieldDescriptorCount:         "descriptor_count",
	FieldCRCSeed:                 "crc_seed",
	FieldCRCSeedAddress:          "crc_seed_address",
	FieldExpectedResult:          "expected_result",
	FieldExpectedResultMask:      "expected_result_mask",
	FieldDeltaRecordAddress:      "delta_record_address",
	FieldDeltaRecordSize:         "delta_record_size",
	FieldSourceDIFFlags:          "source_dif_flags",
	FieldDestinationDIFFlags:     "destination_dif_flags",
	FieldDIFFlags:                "dif_flags",
	FieldSourceRefTag:            "source_ref_tag",
	FieldSourceAppTagMask:        "source_app_tag_mask",
	FieldSourceAppTag:            "source_app_tag",
	FieldDestinationRefTag:       "destination_ref_tag",
	FieldDestinationAppTagMask:   "destination_app_tag_mask",
	FieldDestinationAppTag:       "destination_app_tag",
	FieldStatus:                  "status",
	FieldResult:                  "result",
	FieldBytesCompleted:          "bytes_completed",
	FieldFaultAddress:            "fault_address",
	FieldResultDeltaRecordSize:   "delta_record_size",
	FieldCRCValue:                "crc_value",
	FieldDIFStatus:               "dif_status",
	FieldResultSourceRefTag:      "source_ref_tag",
	FieldResultDestinationRefTag: "destination_ref_tag",
	FieldResultSourceAppTag:      "source_app_tag",
	FieldResultDestinationAppTag: "destination_app_tag",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return "unknown"
}

// Slot is the location of a field inside a record.
type Slot struct {
	Offset int
	Width  int
}

var (
	commandHeader = map[Field]Slot{
		FieldFlags:                   {4, 2},
		FieldOpFlags:                 {6, 1},
		FieldOpcode:                  {7, 1},
		FieldCompletionRecordAddress: {8, 8},
		FieldInterruptHandle:         {36, 4},
	}

	// Source, destination and size fields in their plain meaning.
	commandTransfer = map[Field]Slot{
		FieldSource:       {16, 8},
		FieldDestination:  {24, 8},
		FieldTransferSize: {32, 4},
	}

	difSource = map[Field]Slot{
		FieldSourceDIFFlags:   {40, 1},
		FieldDIFFlags:         {42, 1},
		FieldSourceRefTag:     {48, 4},
		FieldSourceAppTagMask: {52, 2},
		FieldSourceAppTag:     {54, 2},
	}

	difDestination = map[Field]Slot{
		FieldDestinationDIFFlags:   {41, 1},
		FieldDIFFlags:              {42, 1},
		FieldDestinationRefTag:     {56, 4},
		FieldDestinationAppTagMask: {60, 2},
		FieldDestinationAppTag:     {62, 2},
	}

	// commandLayouts is the authoritative offset table for command records.
	commandLayouts = map[Opcode][]map[Field]Slot{
		OpNop:   {commandHeader},
		OpDrain: {commandHeader},
		OpBatch: {commandHeader, {
			FieldDescriptorList:  {16, 8},
			FieldDescriptorCount: {32, 4},
		}},
		OpMemMove: {commandHeader, commandTransfer},
		OpFill: {commandHeader, {
			FieldPattern:      {16, 8},
			FieldDestination:  {24, 8},
			FieldTransferSize: {32, 4},
		}},
		OpCompare: {commandHeader, {
			FieldSource:         {16, 8},
			FieldSource2:        {24, 8},
			FieldTransferSize:   {32, 4},
			FieldExpectedResult: {40, 1},
		}},
		OpComparePattern: {commandHeader, {
			FieldSource:         {16, 8},
			FieldPattern:        {24, 8},
			FieldTransferSize:   {32, 4},
			FieldExpectedResult: {40, 1},
		}},
		OpCreateDelta: {commandHeader, {
			FieldSource:             {16, 8},
			FieldSource2:            {24, 8},
			FieldTransferSize:       {32, 4},
			FieldDeltaRecordAddress: {40, 8},
			FieldDeltaRecordSize:    {48, 4},
			FieldExpectedResultMask: {56, 1},
		}},
		OpApplyDelta: {commandHeader, {
			FieldDestination:        {24, 8},
			FieldTransferSize:       {32, 4},
			FieldDeltaRecordAddress: {40, 8},
			FieldDeltaRecordSize:    {48, 4},
		}},
		OpDualcast: {commandHeader, commandTransfer, {
			FieldDestination2: {40, 8},
		}},
		OpCRC: {commandHeader, {
			FieldSource:         {16, 8},
			FieldTransferSize:   {32, 4},
			FieldCRCSeed:        {40, 4},
			FieldCRCSeedAddress: {48, 8},
		}},
		OpCopyCRC: {commandHeader, commandTransfer, {
			FieldCRCSeed:        {40, 4},
			FieldCRCSeedAddress: {48, 8},
		}},
		OpDIFCheck: {commandHeader, {
			FieldSource:       {16, 8},
			FieldTransferSize: {32, 4},
		}, difSource},
		OpDIFInsert: {commandHeader, commandTransfer, difDestination},
		OpDIFStrip:  {commandHeader, commandTransfer, difSource},
		OpDIFUpdate: {commandHeader, commandTransfer, difSource, difDestination},
		OpCacheFlush: {commandHeader, {
			FieldDestination:  {24, 8},
			FieldTransferSize: {32, 4},
		}},
	}

	resultHeader = map[Field]Slot{
		FieldStatus:         {0, 1},
		FieldResult:         {1, 1},
		FieldBytesCompleted: {4, 4},
		FieldFaultAddress:   {8, 8},
	}

	resultDIF = map[Field]Slot{
		FieldDIFStatus:               {16, 1},
		FieldResultSourceRefTag:      {20, 4},
		FieldResultDestinationRefTag: {24, 4},
		FieldResultSourceAppTag:      {28, 2},
		FieldResultDestinationAppTag: {30, 2},
	}

	// resultLayouts is the authoritative offset table for result records.
	resultLayouts = map[Opcode][]map[Field]Slot{
		OpCreateDelta: {resultHeader, {FieldResultDeltaRecordSize: {16, 4}}},
		OpCRC:         {resultHeader, {FieldCRCValue: {16, 4}}},
		OpCopyCRC:     {resultHeader, {FieldCRCValue: {16, 4}}},
		OpDIFCheck:    {resultHeader, resultDIF},
		OpDIFInsert:   {resultHeader, resultDIF},
		OpDIFStrip:    {resultHeader, resultDIF},
		OpDIFUpdate:   {resultHeader, resultDIF},
	}
)

const noSlot = -1

// Flattened tables indexed by opcode then field; noSlot marks a field that
// does not exist for that opcode.
var (
	commandSlots [256][numFields]Slot
	resultSlots  [256][numFields]Slot
)

func init() {
	flatten := func(dst *[256][numFields]Slot, layouts map[Opcode][]map[Field]Slot, size int, fallback []map[Field]Slot) {
		for op := range dst {
			for f := range dst[op] {
				dst[op][f] = Slot{Offset: noSlot}
			}
		}
		for i := range 256 {
			op := Opcode(i)
			parts, ok := layouts[op]
			if !ok {
				parts = fallback
			}
			for _, part := range parts {
				for f, s := range part {
					if s.Offset+s.Width > size {
						panic(fmt.Sprintf("%s field %s exceeds record size", op, f))
					}
					dst[op][f] = s
				}
			}
		}
	}
	flatten(&commandSlots, commandLayouts, CommandSize, []map[Field]Slot{commandHeader})
	flatten(&resultSlots, resultLayouts, ResultSize, []map[Field]Slot{resultHeader})
}

// CommandSlot returns where f lives in a command record for op.
func CommandSlot(op Opcode, f Field) (Slot, bool) {
	if f >= numFields {
		return Slot{}, false
	}
	s := commandSlots[op][f]
	return s, s.Offset != noSlot
}

// ResultSlot returns where f lives in a result record for op.
func ResultSlot(op Opcode, f Field) (Slot, bool) {
	if f >= numFields {
		return Slot{}, false
	}
	s := resultSlots[op][f]
	return s, s.Offset != noSlot
}

// CommandFields lists the fields defined for op in a command record.
func CommandFields(op Opcode) []Field {
	return fieldsOf(&commandSlots, op)
}

func fieldsOf(t *[256][numFields]Slot, op Opcode) []Field {
	var out []Field
	for f := range numFields {
		if t[op][f].Offset != noSlot {
			out = append(out, f)
		}
	}
	return out
}
