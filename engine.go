package datamover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/datamover/config"
	"github.com/slackhq/datamover/emulator"
	"github.com/slackhq/datamover/idxd"
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/util"
)

// Options selects how an [Engine] executes commands.
type Options struct {
	// Path is used by Execute.
	Path PathKind
	// Wait is how hardware completions are waited for.
	Wait WaitMode
	// Timeout bounds each Execute call when non-zero.
	Timeout time.Duration
}

// Engine owns the work queues of a process and the three paths built on
// them. It is created once and shared.
type Engine struct {
	l    *logrus.Logger
	opts Options

	dispatcher *Dispatcher
	software   *Software
	hardware   *Hardware
	automatic  *Automatic
}

// NewEngine builds an engine over queues. Queues that implement io.Closer
// are closed by [Engine.Close].
func NewEngine(l *logrus.Logger, opts Options, queues ...Queue) *Engine {
	d := NewDispatcher(l, queues...)
	sw := NewSoftware()
	hw := NewHardware(d, opts.Wait)

	l.WithField("path", opts.Path).
		WithField("wait", opts.Wait).
		WithField("timeout", opts.Timeout).
		WithField("queues", len(queues)).
		Info("Engine ready")

	return &Engine{
		l:          l,
		opts:       opts,
		dispatcher: d,
		software:   sw,
		hardware:   hw,
		automatic:  NewAutomatic(hw, sw),
	}
}

// NewEngineFromConfig builds an engine from the engine and hardware sections
// of c. Emulated queues are started before the engine is returned.
func NewEngineFromConfig(l *logrus.Logger, c *config.C) (*Engine, error) {
	path, err := ParsePathKind(c.GetString("engine.path", "automatic"))
	if err != nil {
		return nil, util.NewContextualError("Invalid engine.path", nil, err)
	}

	wait, err := ParseWaitMode(c.GetString("engine.wait", "yield"))
	if err != nil {
		return nil, util.NewContextualError("Invalid engine.wait", nil, err)
	}

	opts := Options{
		Path:    path,
		Wait:    wait,
		Timeout: c.GetDuration("engine.timeout", 0),
	}

	var queues []Queue
	closeAll := func() {
		for _, q := range queues {
			if cl, ok := q.(io.Closer); ok {
				_ = cl.Close()
			}
		}
	}

	if c.GetBool("hardware.idxd.enabled", true) {
		sysfs := c.GetString("hardware.idxd.sysfs", idxd.DefaultSysfs)
		devfs := c.GetString("hardware.idxd.devfs", idxd.DefaultDevfs)
		found, err := idxd.Discover(l, sysfs, devfs)
		if err != nil {
			return nil, util.NewContextualError("Failed to discover idxd work queues",
				map[string]any{"sysfs": sysfs, "devfs": devfs}, err)
		}
		for _, q := range found {
			queues = append(queues, q)
		}
	}

	sections, err := c.GetSections("hardware.emulated")
	if err != nil {
		closeAll()
		return nil, util.NewContextualError("Invalid hardware.emulated", nil, err)
	}
	for i, s := range sections {
		eo := emulator.Options{
			Size:     s.GetInt("size", 32),
			NUMANode: s.GetInt("numa", -1),
			Name:     s.GetString("name", fmt.Sprintf("emulated%d", i)),
		}
		if n := s.GetUint32("fault_after", 0); n > 0 {
			eo.Faults = emulator.FaultAfter(n, s.GetBool("fault_write", false))
		}

		q, err := emulator.New(l, eo)
		if err != nil {
			closeAll()
			return nil, util.NewContextualError("Failed to create emulated work queue",
				map[string]any{"index": i, "size": eo.Size}, err)
		}
		q.Start()
		queues = append(queues, q)
	}

	return NewEngine(l, opts, queues...), nil
}

// Path returns the path of the given kind.
func (e *Engine) Path(kind PathKind) Path {
	switch kind {
	case PathSoftware:
		return e.software
	case PathHardware:
		return e.hardware
	default:
		return e.automatic
	}
}

// Queues returns the work queues the engine dispatches to.
func (e *Engine) Queues() []Queue {
	return e.dispatcher.Queues()
}

// Execute validates cmd, submits it on the configured path and waits for res
// to complete. The execution status is left in res. A *ValidationError is
// returned when cmd is rejected and ErrQueueBusy or ErrNoQueue when the
// hardware path could not submit it. When the wait is abandoned because ctx
// is done the producer still owns res.
func (e *Engine) Execute(ctx context.Context, cmd *record.Command, res *record.Result) error {
	if err := Validate(cmd); err != nil {
		return err
	}

	p := e.Path(e.opts.Path)
	if s := p.Submit(cmd, res); s != SubmissionSuccess {
		return s.Err()
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	return p.Wait(ctx, cmd, res)
}

// Close closes every queue that can be closed. Commands already queued on an
// emulated queue are completed first.
func (e *Engine) Close() error {
	var errs []error
	for _, q := range e.dispatcher.Queues() {
		if cl, ok := q.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
