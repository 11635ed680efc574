package datamover

import (
	"context"
	"fmt"
	"strings"

	"github.com/slackhq/datamover/kernels"
	"github.com/slackhq/datamover/record"
)

// Path submits commands to a producer and waits for their result records.
// A command and its result belong to one goroutine from Submit until Wait or
// Poll has reported completion.
type Path interface {
	// Submit hands cmd to the path. On success the result record is owned by
	// a producer until it completes.
	Submit(cmd *record.Command, res *record.Result) SubmissionStatus
	// Wait returns once res holds a terminal status, or with the context
	// error if ctx is done first.
	Wait(ctx context.Context, cmd *record.Command, res *record.Result) error
	// Poll reports whether res holds a terminal status without waiting.
	Poll(cmd *record.Command, res *record.Result) bool
}

// PathKind names one of the submission paths.
type PathKind uint8

const (
	PathAutomatic PathKind = iota
	PathSoftware
	PathHardware
)

func (k PathKind) String() string {
	switch k {
	case PathAutomatic:
		return "automatic"
	case PathSoftware:
		return "software"
	case PathHardware:
		return "hardware"
	}
	return "unknown"
}

// ParsePathKind parses the names returned by PathKind.String.
func ParsePathKind(s string) (PathKind, error) {
	switch strings.ToLower(s) {
	case "automatic", "auto", "":
		return PathAutomatic, nil
	case "software":
		return PathSoftware, nil
	case "hardware":
		return PathHardware, nil
	}
	return 0, fmt.Errorf("unknown path %q, possible paths: automatic, software, hardware", s)
}

// Software runs commands on the calling goroutine with the reference
// kernels. Submit returns only after the result record is complete, and a
// software run never stops part way through.
type Software struct {
	m *engineMetrics
}

var _ Path = (*Software)(nil)

func NewSoftware() *Software {
	return &Software{m: newEngineMetrics()}
}

func (s *Software) Submit(cmd *record.Command, res *record.Result) SubmissionStatus {
	s.m.software.Inc(1)
	res.Reset()
	kernels.Run(cmd, res)
	return SubmissionSuccess
}

func (s *Software) Wait(_ context.Context, _ *record.Command, _ *record.Result) error {
	return nil
}

func (s *Software) Poll(_ *record.Command, res *record.Result) bool {
	return res.Completed()
}

// Hardware hands commands to a work queue chosen by a [Dispatcher]. The
// device writes the result record asynchronously and may report a page
// fault after completing only part of a command.
type Hardware struct {
	d    *Dispatcher
	wait WaitMode
	m    *engineMetrics
}

var _ Path = (*Hardware)(nil)

func NewHardware(d *Dispatcher, wait WaitMode) *Hardware {
	return &Hardware{d: d, wait: wait, m: newEngineMetrics()}
}

// Submit submits cmd on behalf of the NUMA node the caller is running on.
func (h *Hardware) Submit(cmd *record.Command, res *record.Result) SubmissionStatus {
	return h.SubmitNode(cmd, res, CurrentNode())
}

// SubmitNode submits cmd to a queue local to node. It points cmd at res and
// asks for a completion record. Block on fault is cleared for every operation
// that carries data so that a fault is reported instead of stalling the
// queue.
func (h *Hardware) SubmitNode(cmd *record.Command, res *record.Result, node int) SubmissionStatus {
	res.Reset()
	cmd.RequestCompletion(res)
	if !cmd.Opcode().IsControl() {
		cmd.SetFlags(cmd.Flags() &^ record.FlagBlockOnFault)
	}

	_, err := h.d.Submit(cmd, node)
	if err != nil {
		h.m.hardwareRejected.Inc(1)
		return submissionStatus(err)
	}
	h.m.hardware.Inc(1)
	return SubmissionSuccess
}

func (h *Hardware) Wait(ctx context.Context, _ *record.Command, res *record.Result) error {
	return waitFor(ctx, h.wait, res)
}

func (h *Hardware) Poll(_ *record.Command, res *record.Result) bool {
	return res.Completed()
}

// Automatic submits to hardware and falls back to software when no queue
// takes the command. When the device reports a page fault part way through,
// Wait and Poll finish the remaining work in software and merge both
// completions, so callers never observe a partial completion. After a
// recovery cmd describes the continuation, not the original command.
type Automatic struct {
	hw *Hardware
	sw *Software
	m  *engineMetrics
}

var _ Path = (*Automatic)(nil)

func NewAutomatic(hw *Hardware, sw *Software) *Automatic {
	return &Automatic{hw: hw, sw: sw, m: newEngineMetrics()}
}

func (a *Automatic) Submit(cmd *record.Command, res *record.Result) SubmissionStatus {
	if s := a.hw.Submit(cmd, res); s == SubmissionSuccess {
		return s
	}
	a.m.fallback.Inc(1)
	return a.sw.Submit(cmd, res)
}

func (a *Automatic) Wait(ctx context.Context, cmd *record.Command, res *record.Result) error {
	if err := waitFor(ctx, a.hw.wait, res); err != nil {
		return err
	}
	a.finish(cmd, res)
	return nil
}

func (a *Automatic) Poll(cmd *record.Command, res *record.Result) bool {
	if !res.Completed() {
		return false
	}
	a.finish(cmd, res)
	return true
}

// finish completes the work left by a page fault. The continuation runs in
// software, which does not fault, so this happens at most once per command.
func (a *Automatic) finish(cmd *record.Command, res *record.Result) {
	if !res.Status().IsPartial() {
		return
	}

	partial := *res
	if !continueCommand(cmd, &partial) {
		return
	}
	a.m.pageFault.Inc(1)

	res.Reset()
	a.sw.Submit(cmd, res)
	accumulate(cmd, &partial, res)
}
