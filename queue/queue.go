// Package queue defines what the dispatcher needs from an accelerator work
// queue, so that device backends do not depend on the engine.
package queue

import (
	"errors"

	"github.com/slackhq/datamover/record"
)

var (
	// ErrBusy is returned by [Queue.Enqueue] when the queue is temporarily
	// full. Trying again later or on another queue may succeed.
	ErrBusy = errors.New("work queue is busy")
	// ErrAbsent is returned when the queue is gone: closed, disabled or never
	// backed by a device.
	ErrAbsent = errors.New("work queue is absent")
)

// Queue accepts 64-byte commands for asynchronous execution. Enqueue must not
// block; once it returns nil the producer behind the queue owns the
// completion record the command points at. The command itself may be reused
// as soon as Enqueue returns.
type Queue interface {
	Enqueue(cmd *record.Command) error
	// NUMANode is the node the queue is local to, or -1 when unknown.
	NUMANode() int
}
