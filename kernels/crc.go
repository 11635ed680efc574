package kernels

import (
	"hash/crc32"

	"github.com/slackhq/datamover/record"
)

// castagnoliPoly is CRC-32C in its normal, most significant bit first form.
const castagnoliPoly = 0x1edc6f41

// t10DIFPoly is the guard tag polynomial of T10 protection information.
const t10DIFPoly = 0x8bb7

var (
	castagnoli   = crc32.MakeTable(crc32.Castagnoli)
	castagnoliBE = makeTable32(castagnoliPoly)
	t10DIF       = makeTable16(t10DIFPoly)
)

func makeTable32(poly uint32) *[256]uint32 {
	t := new([256]uint32)
	for i := range t {
		c := uint32(i) << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

func makeTable16(poly uint16) *[256]uint16 {
	t := new([256]uint16)
	for i := range t {
		c := uint16(i) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

// CRC32C continues a CRC-32C computation over data. Without op flags the seed
// and the result are the conventional, inverted checksum value, so the result
// of one call seeds the next. CRCBypassInversion exposes the raw register
// instead and CRCBypassDataReflection feeds data most significant bit first.
func CRC32C(seed uint32, opFlags uint8, data []byte) uint32 {
	reg := seed
	if opFlags&record.CRCBypassInversion == 0 {
		reg = ^reg
	}

	if opFlags&record.CRCBypassDataReflection == 0 {
		// crc32.Update inverts on entry and exit.
		reg = ^crc32.Update(^reg, castagnoli, data)
	} else {
		for _, b := range data {
			reg = reg<<8 ^ castagnoliBE[byte(reg>>24)^b]
		}
	}

	if opFlags&record.CRCBypassInversion == 0 {
		reg = ^reg
	}
	return reg
}

// CRC16T10 continues a T10 DIF guard tag computation over data.
func CRC16T10(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ t10DIF[byte(crc>>8)^b]
	}
	return crc
}

func crc(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	res.SetCRC(CRC32C(cmd.CRCSeed(), cmd.OpFlags(), view(cmd.Source(), n)))
	res.SetBytesCompleted(n)
	res.Complete(record.StatusSuccess, 0)
}

func copyCRC(cmd *record.Command, res *record.Result) {
	n := cmd.TransferSize()
	s := view(cmd.Source(), n)
	copy(view(cmd.Destination(), n), s)
	res.SetCRC(CRC32C(cmd.CRCSeed(), cmd.OpFlags(), s))
	res.SetBytesCompleted(n)
	res.Complete(record.StatusSuccess, 0)
}
