package record

// Opcode selects the operation a [Command] describes and, with it, which
// operation specific layout applies to the bytes past the common header.
type Opcode uint8

const (
	OpNop            Opcode = 0x00
	OpBatch          Opcode = 0x01
	OpDrain          Opcode = 0x02
	OpMemMove        Opcode = 0x03
	OpFill           Opcode = 0x04
	OpCompare        Opcode = 0x05
	OpComparePattern Opcode = 0x06
	OpCreateDelta    Opcode = 0x07
	OpApplyDelta     Opcode = 0x08
	OpDualcast       Opcode = 0x09
	OpCRC            Opcode = 0x10
	OpCopyCRC        Opcode = 0x11
	OpDIFCheck       Opcode = 0x12
	OpDIFInsert      Opcode = 0x13
	OpDIFStrip       Opcode = 0x14
	OpDIFUpdate      Opcode = 0x15
	OpCacheFlush     Opcode = 0x20
)

// Opcodes lists every operation the engine knows about, in opcode order.
var Opcodes = []Opcode{
	OpNop, OpBatch, OpDrain, OpMemMove, OpFill, OpCompare, OpComparePattern,
	OpCreateDelta, OpApplyDelta, OpDualcast, OpCRC, OpCopyCRC, OpDIFCheck,
	OpDIFInsert, OpDIFStrip, OpDIFUpdate, OpCacheFlush,
}

var opcodeMap = map[Opcode]string{
	OpNop:            "nop",
	OpBatch:          "batch",
	OpDrain:          "drain",
	OpMemMove:        "mem_move",
	OpFill:           "fill",
	OpCompare:        "compare",
	OpComparePattern: "compare_pattern",
	OpCreateDelta:    "create_delta",
	OpApplyDelta:     "apply_delta",
	OpDualcast:       "dualcast",
	OpCRC:            "crc",
	OpCopyCRC:        "copy_crc",
	OpDIFCheck:       "dif_check",
	OpDIFInsert:      "dif_insert",
	OpDIFStrip:       "dif_strip",
	OpDIFUpdate:      "dif_update",
	OpCacheFlush:     "cache_flush",
}

func (o Opcode) String() string {
	if n, ok := opcodeMap[o]; ok {
		return n
	}
	return "unknown"
}

// Known reports whether o is one of [Opcodes].
func (o Opcode) Known() bool {
	_, ok := opcodeMap[o]
	return ok
}

// IsDIF reports whether o is one of the four data integrity field operations.
func (o Opcode) IsDIF() bool {
	return o >= OpDIFCheck && o <= OpDIFUpdate
}

// IsControl reports whether o carries no data payload (nop, drain, batch).
func (o Opcode) IsControl() bool {
	return o == OpNop || o == OpDrain || o == OpBatch
}
