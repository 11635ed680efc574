// Package emulator provides an accelerator work queue that executes commands
// on the CPU. It accepts the same 64-byte commands a hardware queue does,
// completes them asynchronously and can be told to stop part way through a
// command with a page fault, the way a device does when it touches memory
// that is not mapped.
package emulator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/datamover/memory"
	"github.com/slackhq/datamover/queue"
	"github.com/slackhq/datamover/record"
)

// ErrQueueSizeInvalid is returned when a queue size is invalid.
var ErrQueueSizeInvalid = errors.New("queue size is invalid")

// MaxQueueSize is the largest number of slots a queue can have.
const MaxQueueSize = 32768

// CheckQueueSize checks if the given value would be a valid size for a queue
// and returns an [ErrQueueSizeInvalid], if not.
func CheckQueueSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d is too small", ErrQueueSizeInvalid, size)
	}

	// Ring indexes wrap by masking, which needs a power of 2.
	if size&(size-1) != 0 {
		return fmt.Errorf("%w: %d is not a power of 2", ErrQueueSizeInvalid, size)
	}

	if size > MaxQueueSize {
		return fmt.Errorf("%w: %d is larger than the maximum possible queue size %d",
			ErrQueueSizeInvalid, size, MaxQueueSize)
	}

	return nil
}

// Options configures a [Queue].
type Options struct {
	// Size is the number of commands the queue can hold. Defaults to 32.
	Size int
	// NUMANode is the node reported by [Queue.NUMANode].
	NUMANode int
	// Faults injects partial completions. Nil never faults.
	Faults FaultPolicy
	// Name identifies the queue in logs and metrics.
	Name string
}

// Queue is an emulated work queue. Commands are copied into a ring of slots
// on Enqueue and executed in order by a worker goroutine started with Start.
type Queue struct {
	l      *logrus.Logger
	name   string
	node   int
	faults FaultPolicy

	mem   *memory.Buffer
	slots []*record.Command
	mask  uint32

	// scratch receives the outcome of commands that asked for none. Only the
	// worker touches it.
	scratch *record.Result

	mu     sync.Mutex
	head   uint32
	tail   uint32
	closed bool

	doorbell chan struct{}
	wg       sync.WaitGroup

	executed metrics.Counter
	faulted  metrics.Counter
}

var _ queue.Queue = (*Queue)(nil)

// New allocates a queue. It does not execute anything until Start is called.
func New(l *logrus.Logger, opts Options) (*Queue, error) {
	if opts.Size == 0 {
		opts.Size = 32
	}
	if err := CheckQueueSize(opts.Size); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("emulated%d", opts.NUMANode)
	}

	mem, err := memory.Alloc(opts.Size * record.CommandSize)
	if err != nil {
		return nil, fmt.Errorf("allocate ring for %s: %w", opts.Name, err)
	}

	q := &Queue{
		l:        l,
		name:     opts.Name,
		node:     opts.NUMANode,
		faults:   opts.Faults,
		mem:      mem,
		slots:    make([]*record.Command, opts.Size),
		mask:     uint32(opts.Size - 1),
		scratch:  record.NewResult(),
		doorbell: make(chan struct{}, 1),
		executed: metrics.GetOrRegisterCounter("emulator."+opts.Name+".executed", nil),
		faulted:  metrics.GetOrRegisterCounter("emulator."+opts.Name+".faulted", nil),
	}
	for i := range q.slots {
		q.slots[i] = record.CommandAt(mem.At(i * record.CommandSize))
	}
	return q, nil
}

// Name returns the name the queue was created with.
func (q *Queue) Name() string {
	return q.name
}

// NUMANode returns the node the queue pretends to be local to.
func (q *Queue) NUMANode() int {
	return q.node
}

// Size returns the number of slots.
func (q *Queue) Size() int {
	return len(q.slots)
}

// Start launches the worker goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
	q.l.WithField("queue", q.name).WithField("numa", q.node).WithField("size", len(q.slots)).
		Info("Emulated work queue started")
}

// Enqueue copies cmd into the next free slot. It returns [queue.ErrBusy] when
// every slot is taken and [queue.ErrAbsent] after Close.
func (q *Queue) Enqueue(cmd *record.Command) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queue.ErrAbsent
	}
	if q.tail-q.head > q.mask {
		q.mu.Unlock()
		return queue.ErrBusy
	}
	*q.slots[q.tail&q.mask] = *cmd
	q.tail++
	q.mu.Unlock()

	q.ring()
	return nil
}

func (q *Queue) ring() {
	select {
	case q.doorbell <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.head == q.tail {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.doorbell
			continue
		}
		cmd := q.slots[q.head&q.mask]
		q.mu.Unlock()

		q.process(cmd)

		q.mu.Lock()
		q.head++
		q.mu.Unlock()
	}
}

func (q *Queue) process(cmd *record.Command) {
	var res *record.Result
	if cmd.Flags().Has(record.FlagCompletionRecordAddressValid | record.FlagRequestCompletionRecord) {
		res = record.ResultAt(cmd.CompletionRecordAddress())
	} else {
		res = q.scratch
		res.Reset()
	}
	if execute(cmd, res, q.faults) {
		q.faulted.Inc(1)
	}
	q.executed.Inc(1)
}

// Close stops accepting commands, lets the worker finish the ones already
// queued and releases the ring.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.ring()
	q.wg.Wait()
	q.scratch.Release()
	return q.mem.Free()
}
