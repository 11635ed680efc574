package record

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/slackhq/datamover/memory"
)

// statusShift moves the completion byte of a result to the low bits of the
// 32-bit word it is loaded with.
var statusShift = func() uint32 {
	var w uint32 = 1
	if *(*byte)(unsafe.Pointer(&w)) == 1 {
		return 0
	}
	return 24
}()

// Records never live on the Go heap. Their addresses are handed to devices
// and come back as plain integers in completion and descriptor list fields,
// and turning an integer back into a pointer is only valid for memory the
// runtime does not manage.

// poolChunk is how much memory a pool maps when it runs out of records.
const poolChunk = 64 << 10

// pool hands out fixed size records carved from anonymous mappings. Released
// records are zeroed and reused; the mappings are never returned.
type pool struct {
	size int

	mu     sync.Mutex
	free   []unsafe.Pointer
	chunks []*memory.Buffer
}

var (
	commandPool = pool{size: CommandSize}
	resultPool  = pool{size: ResultSize}
)

func (p *pool) get() unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		b := memory.MustAlloc(poolChunk)
		p.chunks = append(p.chunks, b)
		// Hand out the lowest addresses first.
		for off := poolChunk - p.size; off >= 0; off -= p.size {
			p.free = append(p.free, unsafe.Pointer(&b.Bytes()[off]))
		}
	}

	r := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return r
}

func (p *pool) put(r unsafe.Pointer) {
	addr := uint64(uintptr(r))

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, b := range p.chunks {
		if addr >= b.Addr() && addr < b.Addr()+poolChunk {
			clear(unsafe.Slice((*byte)(r), p.size))
			p.free = append(p.free, r)
			return
		}
	}
	panic(fmt.Sprintf("record %#x was not allocated by its pool", addr))
}

// lists tracks the mappings behind NewCommandList and NewResultList by the
// address of their first record.
var lists struct {
	sync.Mutex
	m map[uint64]*memory.Buffer
}

func mapList(size int) unsafe.Pointer {
	b := memory.MustAlloc(size)

	lists.Lock()
	defer lists.Unlock()
	if lists.m == nil {
		lists.m = make(map[uint64]*memory.Buffer)
	}
	lists.m[b.Addr()] = b
	return unsafe.Pointer(&b.Bytes()[0])
}

func unmapList(addr uint64) error {
	lists.Lock()
	b, ok := lists.m[addr]
	delete(lists.m, addr)
	lists.Unlock()

	if !ok {
		return fmt.Errorf("no record list at %#x", addr)
	}
	return b.Free()
}

// NewCommandList allocates n contiguous, zeroed commands, the layout a batch
// descriptor list needs. The list is page aligned and stays valid until it is
// passed to [ReleaseCommandList].
func NewCommandList(n int) []Command {
	if n <= 0 {
		return nil
	}
	return unsafe.Slice((*Command)(mapList(n*CommandSize)), n)
}

// ReleaseCommandList unmaps a list made by [NewCommandList].
func ReleaseCommandList(list []Command) error {
	if len(list) == 0 {
		return nil
	}
	return unmapList(list[0].Address())
}

// NewResultList allocates n contiguous, zeroed result records. The list stays
// valid until it is passed to [ReleaseResultList].
func NewResultList(n int) []Result {
	if n <= 0 {
		return nil
	}
	return unsafe.Slice((*Result)(mapList(n*ResultSize)), n)
}

// ReleaseResultList unmaps a list made by [NewResultList].
func ReleaseResultList(list []Result) error {
	if len(list) == 0 {
		return nil
	}
	return unmapList(list[0].Address())
}

// CommandAt interprets the 64 bytes at addr as a command. The caller
// guarantees addr points at a live record outside the Go heap, such as one
// from [NewCommand] or [NewCommandList].
func CommandAt(addr uint64) *Command {
	//goland:noinspection GoVetUnsafePointer
	return (*Command)(unsafe.Pointer(uintptr(addr)))
}

// ResultAt interprets the 32 bytes at addr as a result record. The caller
// guarantees addr points at a live record outside the Go heap.
func ResultAt(addr uint64) *Result {
	//goland:noinspection GoVetUnsafePointer
	return (*Result)(unsafe.Pointer(uintptr(addr)))
}

// Encode copies c into b, which must hold at least [CommandSize] bytes. This
// is the exact wire image submitted to a work queue.
func (c *Command) Encode(b []byte) []byte {
	b = b[:CommandSize]
	copy(b, c[:])
	return b
}

// Parse loads a command from its wire image.
func (c *Command) Parse(b []byte) error {
	if len(b) < CommandSize {
		return ErrRecordTooShort
	}
	copy(c[:], b[:CommandSize])
	return nil
}

// Reserved returns the leading 32-bit field the kernel driver owns.
func (c *Command) Reserved() uint32 {
	return binary.LittleEndian.Uint32(c[0:4])
}
