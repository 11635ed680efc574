package datamover

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// CurrentNode returns the NUMA node of the CPU the calling goroutine is
// running on, or -1 when it can not be determined. Goroutines migrate between
// threads, so the answer is a hint.
func CurrentNode() int {
	var cpu, node uint32
	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return -1
	}
	return int(node)
}
