package datamover

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/datamover/record"
)

// Dispatcher spreads hardware submissions over the work queues local to the
// submitting NUMA node, round robin. It is built once and shared by every
// goroutine that submits to hardware.
type Dispatcher struct {
	queues   []Queue
	accepted []metrics.Counter

	// lastUsed is the index of the queue that most recently accepted a
	// command. Racing updates only change which queue is tried first.
	lastUsed atomic.Int64
}

// NewDispatcher creates a dispatcher over queues. The order of queues is the
// ring order submissions walk.
func NewDispatcher(l *logrus.Logger, queues ...Queue) *Dispatcher {
	d := &Dispatcher{
		queues:   queues,
		accepted: make([]metrics.Counter, len(queues)),
	}
	// Start just before the first queue so that the first submission tries it.
	d.lastUsed.Store(int64(len(queues) - 1))

	for i, q := range queues {
		d.accepted[i] = metrics.GetOrRegisterCounter("dispatch.queue."+strconv.Itoa(i), nil)
		l.WithField("index", i).WithField("numa", q.NUMANode()).Info("Registered work queue")
	}
	if len(queues) == 0 {
		l.Info("No work queues registered, hardware submissions will fail")
	}
	return d
}

// Queues returns the queues in ring order.
func (d *Dispatcher) Queues() []Queue {
	return d.queues
}

// local reports whether a queue on node qn serves a caller on node n. An
// unknown node on either side matches any node.
func local(qn, n int) bool {
	return qn < 0 || n < 0 || qn == n
}

// Submit enqueues cmd on a queue local to node and returns the index of the
// queue that took it. Queues are tried starting just after the one that last
// accepted a command, wrapping around the ring once. It returns ErrQueueBusy
// when a local queue was busy and ErrNoQueue when none was usable.
func (d *Dispatcher) Submit(cmd *record.Command, node int) (int, error) {
	n := len(d.queues)
	if n == 0 {
		return -1, ErrNoQueue
	}

	last := int(d.lastUsed.Load())
	if last < 0 || last >= n {
		last = n - 1
	}

	busy := false
	for step := 1; step <= n; step++ {
		i := (last + step) % n
		q := d.queues[i]
		if !local(q.NUMANode(), node) {
			continue
		}

		err := q.Enqueue(cmd)
		if err == nil {
			d.lastUsed.Store(int64(i))
			d.accepted[i].Inc(1)
			return i, nil
		}
		if errors.Is(err, ErrQueueBusy) {
			busy = true
		}
	}

	if busy {
		return -1, ErrQueueBusy
	}
	return -1, ErrNoQueue
}
