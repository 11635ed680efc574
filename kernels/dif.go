package kernels

import (
	"encoding/binary"

	"github.com/slackhq/datamover/record"
)

// Each protected block is followed by an 8-byte footer holding, big endian,
// the 16-bit guard tag (CRC16 of the block), the 16-bit application tag and
// the 32-bit reference tag.
const (
	guardOffset = 0
	appOffset   = 2
	refOffset   = 4
)

type difTags struct {
	ref uint32
	app uint16
}

func (t *difTags) next(fixedRef, incrementApp bool) {
	if !fixedRef {
		t.ref++
	}
	if incrementApp {
		t.app++
	}
}

type footer []byte

func (f footer) guard() uint16 {
	return binary.BigEndian.Uint16(f[guardOffset:])
}

func (f footer) app() uint16 {
	return binary.BigEndian.Uint16(f[appOffset:])
}

func (f footer) ref() uint32 {
	return binary.BigEndian.Uint32(f[refOffset:])
}

func (f footer) put(guard, app uint16, ref uint32) {
	binary.BigEndian.PutUint16(f[guardOffset:], guard)
	binary.BigEndian.PutUint16(f[appOffset:], app)
	binary.BigEndian.PutUint32(f[refOffset:], ref)
}

// Guard computes the guard tag of one block for the DIF flags of cmd.
func Guard(cmd *record.Command, block []byte) uint16 {
	f := cmd.DIFFlags()
	var seed uint16
	if f&record.DIFInvertCRCSeed != 0 {
		seed = 0xffff
	}
	g := CRC16T10(seed, block)
	if f&record.DIFInvertCRCResult != 0 {
		g = ^g
	}
	return g
}

// checkBlock verifies the footer of one source block against the expected
// tags and returns the DIF status bits of every mismatch.
func checkBlock(cmd *record.Command, block []byte, ft footer, want difTags) uint8 {
	flags := cmd.SourceDIFFlags()
	if flags&record.DIFSourceAppAndRefTagFDetect != 0 && ft.app() == 0xffff && ft.ref() == 0xffffffff {
		return 0
	}
	if flags&record.DIFSourceAppTagFDetect != 0 && ft.app() == 0xffff {
		return 0
	}

	var bits uint8
	if flags&record.DIFSourceGuardCheckDisable == 0 && ft.guard() != Guard(cmd, block) {
		bits |= record.DIFStatusGuardMismatch
	}
	mask := cmd.SourceAppTagMask()
	if ft.app()&^mask != want.app&^mask {
		bits |= record.DIFStatusAppTagMismatch
	}
	if flags&record.DIFSourceRefTagCheckDisable == 0 && ft.ref() != want.ref {
		bits |= record.DIFStatusRefTagMismatch
	}
	return bits
}

func sourceTags(cmd *record.Command) (difTags, bool, bool) {
	f := cmd.SourceDIFFlags()
	return difTags{ref: cmd.SourceRefTag(), app: cmd.SourceAppTag()},
		f&record.DIFSourceRefTagFixed != 0, f&record.DIFSourceAppTagIncrement != 0
}

func destinationTags(cmd *record.Command) (difTags, bool, bool) {
	f := cmd.DestinationDIFFlags()
	return difTags{ref: cmd.DestinationRefTag(), app: cmd.DestinationAppTag()},
		f&record.DIFDestinationRefTagFixed != 0, f&record.DIFDestinationAppTagIncrement != 0
}

func completeDIF(res *record.Result, status record.Status, bits uint8, completed uint32, src, dst difTags) {
	res.SetDIF(record.DIFTags{
		Status:            bits,
		SourceRefTag:      src.ref,
		SourceAppTag:      src.app,
		DestinationRefTag: dst.ref,
		DestinationAppTag: dst.app,
	})
	res.SetBytesCompleted(completed)
	res.Complete(status, 0)
}

func difCheck(cmd *record.Command, res *record.Result) {
	bs := cmd.DIFBlockSize()
	unit := bs + record.DIFFooterSize
	n := cmd.TransferSize()
	src := view(cmd.Source(), n)
	tags, fixed, inc := sourceTags(cmd)

	for off := uint32(0); off < n; off += unit {
		if bits := checkBlock(cmd, src[off:off+bs], footer(src[off+bs:off+unit]), tags); bits != 0 {
			completeDIF(res, record.StatusDIFError, bits, off, tags, difTags{})
			return
		}
		tags.next(fixed, inc)
	}
	completeDIF(res, record.StatusSuccess, 0, n, tags, difTags{})
}

func difInsert(cmd *record.Command, res *record.Result) {
	bs := cmd.DIFBlockSize()
	unit := bs + record.DIFFooterSize
	n := cmd.TransferSize()
	src := view(cmd.Source(), n)
	dst := view(cmd.Destination(), n/bs*unit)
	tags, fixed, inc := destinationTags(cmd)

	for i := uint32(0); i < n/bs; i++ {
		block := src[i*bs : (i+1)*bs]
		out := dst[i*unit : (i+1)*unit]
		copy(out, block)
		footer(out[bs:]).put(Guard(cmd, block), tags.app, tags.ref)
		tags.next(fixed, inc)
	}
	completeDIF(res, record.StatusSuccess, 0, n, difTags{}, tags)
}

func difStrip(cmd *record.Command, res *record.Result) {
	bs := cmd.DIFBlockSize()
	unit := bs + record.DIFFooterSize
	n := cmd.TransferSize()
	src := view(cmd.Source(), n)
	dst := view(cmd.Destination(), n/unit*bs)
	tags, fixed, inc := sourceTags(cmd)

	for i := uint32(0); i < n/unit; i++ {
		copy(dst[i*bs:(i+1)*bs], src[i*unit:i*unit+bs])
		tags.next(fixed, inc)
	}
	completeDIF(res, record.StatusSuccess, 0, n, tags, difTags{})
}

func difUpdate(cmd *record.Command, res *record.Result) {
	bs := cmd.DIFBlockSize()
	unit := bs + record.DIFFooterSize
	n := cmd.TransferSize()
	src := view(cmd.Source(), n)
	dst := view(cmd.Destination(), n)
	stags, sfixed, sinc := sourceTags(cmd)
	dtags, dfixed, dinc := destinationTags(cmd)
	df := cmd.DestinationDIFFlags()

	for off := uint32(0); off < n; off += unit {
		block := src[off : off+bs]
		in := footer(src[off+bs : off+unit])
		if bits := checkBlock(cmd, block, in, stags); bits != 0 {
			completeDIF(res, record.StatusDIFError, bits, off, stags, dtags)
			return
		}

		guard, app, ref := Guard(cmd, block), dtags.app, dtags.ref
		if df&record.DIFDestinationGuardPassThrough != 0 {
			guard = in.guard()
		}
		if df&record.DIFDestinationAppTagPassThrough != 0 {
			app = in.app()
		}
		if df&record.DIFDestinationRefTagPassThrough != 0 {
			ref = in.ref()
		}
		copy(dst[off:off+bs], block)
		footer(dst[off+bs:off+unit]).put(guard, app, ref)

		stags.next(sfixed, sinc)
		dtags.next(dfixed, dinc)
	}
	completeDIF(res, record.StatusSuccess, 0, n, stags, dtags)
}
