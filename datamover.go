// Package datamover dispatches memory transforms to a hardware data mover or
// to the CPU.
//
// A transform is described by a 64-byte [record.Command] and reports into a
// 32-byte [record.Result]. Three submission paths share that pair of records:
// [Software] runs the transform on the calling goroutine, [Hardware] hands it
// to a work queue picked by the [Dispatcher], and [Automatic] uses hardware
// when it can, falls back to software when no queue takes the command and
// finishes the remainder in software when the device stops part way through
// with a page fault.
package datamover

import (
	"errors"
	"fmt"

	"github.com/slackhq/datamover/queue"
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/validate"
)

// Queue is an accelerator work queue.
type Queue = queue.Queue

var (
	// ErrQueueBusy is returned when every queue local to the caller was busy.
	ErrQueueBusy = queue.ErrBusy
	// ErrQueueAbsent is returned by a queue that can no longer accept work.
	ErrQueueAbsent = queue.ErrAbsent
	// ErrNoQueue is returned when no queue is local to the caller.
	ErrNoQueue = errors.New("no work queue available")
)

// SubmissionStatus is the outcome of handing a command to a path.
type SubmissionStatus uint8

const (
	// SubmissionSuccess means a producer now owns the result record.
	SubmissionSuccess SubmissionStatus = iota
	// SubmissionQueueBusy means every local queue was full.
	SubmissionQueueBusy
	// SubmissionNoQueue means there is no queue to submit to.
	SubmissionNoQueue
)

var submissionStatusMap = map[SubmissionStatus]string{
	SubmissionSuccess:   "success",
	SubmissionQueueBusy: "queue busy",
	SubmissionNoQueue:   "no queue",
}

func (s SubmissionStatus) String() string {
	if n, ok := submissionStatusMap[s]; ok {
		return n
	}
	return "unknown"
}

// Err returns the error matching s, nil for success.
func (s SubmissionStatus) Err() error {
	switch s {
	case SubmissionSuccess:
		return nil
	case SubmissionQueueBusy:
		return ErrQueueBusy
	default:
		return ErrNoQueue
	}
}

func submissionStatus(err error) SubmissionStatus {
	switch {
	case err == nil:
		return SubmissionSuccess
	case errors.Is(err, ErrQueueBusy):
		return SubmissionQueueBusy
	default:
		return SubmissionNoQueue
	}
}

// ValidationError is returned when a command is rejected before submission.
type ValidationError struct {
	Op     record.Opcode
	Status validate.Status
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s command: %s", e.Op, e.Status)
}

// Validate checks cmd and returns a *ValidationError when it must not be
// submitted.
func Validate(cmd *record.Command) error {
	if s := validate.Command(cmd); s != validate.OK {
		return &ValidationError{Op: cmd.Opcode(), Status: s}
	}
	return nil
}
