// Package memory provides buffers whose addresses can be handed to an
// accelerator, and views that turn such addresses back into byte slices.
//
// Buffers are anonymous private mappings: they are page aligned, never moved
// or collected by the Go runtime and stay valid until Free is called.
package memory

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrFreed is returned when a buffer is used after Free.
var ErrFreed = errors.New("buffer has been freed")

// Buffer is a page aligned region of memory outside the Go heap.
type Buffer struct {
	b []byte
}

// Alloc maps size bytes of zeroed memory. The size is rounded up to whole
// pages; Bytes still reports exactly size bytes.
func Alloc(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocate %d bytes: size must be positive", size)
	}
	page := os.Getpagesize()
	mapped := (size + page - 1) / page * page
	b, err := unix.Mmap(-1, 0, mapped,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("allocate buffer memory: %w", err)
	}
	return &Buffer{b: b[:size:mapped]}, nil
}

// MustAlloc is Alloc for tests and tools that cannot continue without memory.
func MustAlloc(size int) *Buffer {
	b, err := Alloc(size)
	if err != nil {
		panic(err)
	}
	return b
}

// Bytes returns the usable part of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Len returns the usable size of the buffer.
func (b *Buffer) Len() int {
	return len(b.b)
}

// Addr returns the virtual address of the first byte.
func (b *Buffer) Addr() uint64 {
	if b.b == nil {
		panic(ErrFreed)
	}
	return uint64(uintptr(unsafe.Pointer(&b.b[:1][0])))
}

// At returns the address of byte off.
func (b *Buffer) At(off int) uint64 {
	return b.Addr() + uint64(off)
}

// Free unmaps the buffer. The buffer can not be used afterwards.
func (b *Buffer) Free() error {
	if b.b == nil {
		return ErrFreed
	}
	full := b.b[:cap(b.b)]
	b.b = nil
	if err := unix.Munmap(full); err != nil {
		return fmt.Errorf("release buffer memory: %w", err)
	}
	return nil
}

// View returns the n bytes at addr as a slice. The caller guarantees that the
// memory stays mapped while the slice is in use.
func View(addr uint64, n uint32) []byte {
	if n == 0 {
		return nil
	}
	// The address refers to memory owned by the caller of the engine, not
	// to anything Go allocated on its behalf.
	//goland:noinspection GoVetUnsafePointer
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}

// Overlaps reports whether [a, a+n) and [b, b+m) share at least one byte.
// Empty regions never overlap.
func Overlaps(a uint64, n uint64, b uint64, m uint64) bool {
	if n == 0 || m == 0 {
		return false
	}
	return a < b+m && b < a+n
}
