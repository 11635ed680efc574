// Package idxd talks to Intel data streaming accelerator work queues through
// the Linux idxd driver: it finds user space work queues in sysfs and submits
// commands by writing them to the work queue character device.
package idxd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slackhq/datamover/queue"
	"github.com/slackhq/datamover/record"
	"golang.org/x/sys/unix"
)

// Queue is an open idxd work queue.
type Queue struct {
	name string
	path string
	mode string
	node int

	mu sync.RWMutex
	fd int
}

var _ queue.Queue = (*Queue)(nil)

// Open opens the character device of one work queue.
func Open(name, path, mode string, node int) (*Queue, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open work queue %s: %w", path, err)
	}
	return &Queue{name: name, path: path, mode: mode, node: node, fd: fd}, nil
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Path() string {
	return q.path
}

func (q *Queue) Mode() string {
	return q.mode
}

func (q *Queue) NUMANode() int {
	return q.node
}

// Enqueue writes the 64 bytes of cmd to the work queue. The driver hands them
// to the device portal; a full shared queue is reported as busy.
func (q *Queue) Enqueue(cmd *record.Command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.fd < 0 {
		return queue.ErrAbsent
	}

	for {
		n, err := unix.Write(q.fd, cmd[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return enqueueError(err)
		}
		if n != record.CommandSize {
			return fmt.Errorf("short write to %s: %d bytes", q.path, n)
		}
		return nil
	}
}

func enqueueError(err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EBUSY):
		return queue.ErrBusy
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO), errors.Is(err, unix.EBADF):
		return queue.ErrAbsent
	}
	return err
}

// Close releases the character device. Later calls to Enqueue report the
// queue as absent.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fd < 0 {
		return nil
	}
	err := unix.Close(q.fd)
	q.fd = -1
	return err
}
