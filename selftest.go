package datamover

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/datamover/memory"
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/validate"
	"golang.org/x/sync/errgroup"
)

// SelfTestOptions sizes a [SelfTest] run.
type SelfTestOptions struct {
	// Size is the transfer size of every operation, rounded up to whole
	// 4 KiB pages. Defaults to 64 KiB.
	Size int
	// Workers is the number of operations in flight. Defaults to 4.
	Workers int
	// Iterations is how many times every operation runs. Defaults to 1.
	Iterations int
	// Seed makes buffer contents reproducible.
	Seed uint64
}

const selfTestPage = 4096

func (o SelfTestOptions) withDefaults() SelfTestOptions {
	if o.Size <= 0 {
		o.Size = 64 << 10
	}
	o.Size = (o.Size + selfTestPage - 1) / selfTestPage * selfTestPage
	if o.Size > validate.MaxDeltaTransferSize {
		o.Size = validate.MaxDeltaTransferSize
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Iterations <= 0 {
		o.Iterations = 1
	}
	return o
}

// SelfTestFailure describes one operation whose outcome on the tested path
// differed from a software run.
type SelfTestFailure struct {
	Name      string
	Iteration int
	Reason    string
}

func (f SelfTestFailure) String() string {
	return fmt.Sprintf("%s[%d]: %s", f.Name, f.Iteration, f.Reason)
}

// SelfTestReport is the outcome of a [SelfTest].
type SelfTestReport struct {
	Runs     int
	Failures []SelfTestFailure
}

// OK reports whether every run matched.
func (r *SelfTestReport) OK() bool {
	return len(r.Failures) == 0
}

// selfTestEnv is the memory one self test run operates on. Both the tested
// and the reference run get an env with identical contents.
type selfTestEnv struct {
	n         uint32
	blocks    uint32
	deltaSize uint32
	bufs      []*memory.Buffer

	src, src2, dst, dst2, delta, prot *memory.Buffer
	list                              []record.Command
}

func newSelfTestEnv(n uint32, seed uint64) (*selfTestEnv, error) {
	e := &selfTestEnv{n: n, blocks: n / 512}
	sizes := []int{
		int(n),
		int(n),
		int(e.blocks * 520),
		int(e.blocks * 520),
		int(n / 8 * validate.DeltaEntrySize),
		int(e.blocks * 520),
	}
	for _, s := range sizes {
		b, err := memory.Alloc(s)
		if err != nil {
			e.free()
			return nil, err
		}
		e.bufs = append(e.bufs, b)
	}
	e.src, e.src2, e.dst, e.dst2, e.delta, e.prot = e.bufs[0], e.bufs[1], e.bufs[2], e.bufs[3], e.bufs[4], e.bufs[5]

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range e.src.Bytes() {
		e.src.Bytes()[i] = byte(r.Uint32())
	}
	copy(e.src2.Bytes(), e.src.Bytes())
	for i := 7; i < int(n); i += 1024 {
		e.src2.Bytes()[i] ^= 0xff
	}
	e.list = record.NewCommandList(4)
	return e, nil
}

func (e *selfTestEnv) free() {
	for _, b := range e.bufs {
		_ = b.Free()
	}
	_ = record.ReleaseCommandList(e.list)
}

func (e *selfTestEnv) equal(o *selfTestEnv) string {
	names := []string{"src", "src2", "dst", "dst2", "delta", "prot"}
	for i, b := range e.bufs {
		if !bytes.Equal(b.Bytes(), o.bufs[i].Bytes()) {
			return names[i] + " contents differ"
		}
	}
	return ""
}

const selfTestPattern = 0x0123456789abcdef

// selfTestCase builds a command over an env. prepare, when set, runs on both
// envs before the command is built; it may use the software path.
type selfTestCase struct {
	name    string
	prepare func(e *selfTestEnv)
	build   func(e *selfTestEnv) *record.Command
}

func protect(e *selfTestEnv) {
	cmd := record.NewCommand(record.OpDIFInsert)
	cmd.SetSource(e.src.Addr())
	cmd.SetDestination(e.prot.Addr())
	cmd.SetTransferSize(e.blocks * 512)
	cmd.SetDestinationDIF(record.DIFDestinationAppTagIncrement, 0x100, 0x42, 0)
	res := record.NewResult()
	NewSoftware().Submit(cmd, res)
	res.Release()
	cmd.Release()
}

func difCommand(op record.Opcode, e *selfTestEnv) *record.Command {
	cmd := record.NewCommand(op)
	cmd.SetSource(e.prot.Addr())
	cmd.SetTransferSize(e.blocks * 520)
	if op != record.OpDIFCheck {
		cmd.SetDestination(e.dst.Addr())
	}
	cmd.SetSourceDIF(record.DIFSourceAppTagIncrement, 0x100, 0x42, 0)
	return cmd
}

var selfTestCases = []selfTestCase{
	{name: "mem_move", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpMemMove)
		cmd.SetSource(e.src.Addr())
		cmd.SetDestination(e.dst.Addr())
		cmd.SetTransferSize(e.n)
		return cmd
	}},
	{name: "mem_move_overlapping", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpMemMove)
		cmd.SetSource(e.src.Addr())
		cmd.SetDestination(e.src.At(64))
		cmd.SetTransferSize(e.n - 64)
		return cmd
	}},
	{name: "fill", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpFill)
		cmd.SetPattern(selfTestPattern)
		cmd.SetDestination(e.dst.At(3))
		cmd.SetTransferSize(e.n - 3)
		return cmd
	}},
	{name: "compare", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpCompare)
		cmd.SetSource(e.src.At(8))
		cmd.SetSource2(e.src2.At(8))
		cmd.SetTransferSize(e.n - 8)
		return cmd
	}},
	{name: "compare_pattern", prepare: func(e *selfTestEnv) {
		b := e.src2.Bytes()
		for i := range b {
			b[i] = byte(uint64(selfTestPattern) >> (8 * (i % 8)))
		}
		b[len(b)/2+5] ^= 0x01
	}, build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpComparePattern)
		cmd.SetSource(e.src2.Addr())
		cmd.SetPattern(selfTestPattern)
		cmd.SetTransferSize(e.n)
		cmd.SetExpectedResult(record.ResultNotEqual)
		cmd.SetFlags(record.FlagCheckResult)
		return cmd
	}},
	{name: "create_delta", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpCreateDelta)
		cmd.SetSource(e.src.Addr())
		cmd.SetSource2(e.src2.Addr())
		cmd.SetTransferSize(e.n)
		cmd.SetDeltaRecordAddress(e.delta.Addr())
		cmd.SetDeltaRecordSize(uint32(e.delta.Len()))
		return cmd
	}},
	{name: "apply_delta", prepare: func(e *selfTestEnv) {
		cmd := record.NewCommand(record.OpCreateDelta)
		cmd.SetSource(e.src.Addr())
		cmd.SetSource2(e.src2.Addr())
		cmd.SetTransferSize(e.n)
		cmd.SetDeltaRecordAddress(e.delta.Addr())
		cmd.SetDeltaRecordSize(uint32(e.delta.Len()))
		res := record.NewResult()
		NewSoftware().Submit(cmd, res)
		e.deltaSize = res.DeltaRecordSize()
		res.Release()
		cmd.Release()
		copy(e.dst.Bytes(), e.src.Bytes())
	}, build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpApplyDelta)
		cmd.SetDestination(e.dst.Addr())
		cmd.SetTransferSize(e.n)
		cmd.SetDeltaRecordAddress(e.delta.Addr())
		cmd.SetDeltaRecordSize(e.deltaSize)
		return cmd
	}},
	{name: "dualcast", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpDualcast)
		cmd.SetSource(e.src.Addr())
		cmd.SetDestination(e.dst.Addr())
		cmd.SetDestination2(e.dst2.Addr())
		cmd.SetTransferSize(e.n)
		return cmd
	}},
	{name: "crc", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpCRC)
		cmd.SetSource(e.src.Addr())
		cmd.SetTransferSize(e.n)
		cmd.SetCRCSeed(0x12345678)
		return cmd
	}},
	{name: "copy_crc_msb_first", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpCopyCRC)
		cmd.SetSource(e.src.Addr())
		cmd.SetDestination(e.dst.Addr())
		cmd.SetTransferSize(e.n)
		cmd.SetOpFlags(record.CRCBypassInversion | record.CRCBypassDataReflection)
		return cmd
	}},
	{name: "dif_insert", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpDIFInsert)
		cmd.SetSource(e.src.Addr())
		cmd.SetDestination(e.dst.Addr())
		cmd.SetTransferSize(e.blocks * 512)
		cmd.SetDestinationDIF(record.DIFDestinationAppTagIncrement, 0x100, 0x42, 0)
		return cmd
	}},
	{name: "dif_check", prepare: protect, build: func(e *selfTestEnv) *record.Command {
		return difCommand(record.OpDIFCheck, e)
	}},
	{name: "dif_strip", prepare: protect, build: func(e *selfTestEnv) *record.Command {
		return difCommand(record.OpDIFStrip, e)
	}},
	{name: "dif_update", prepare: protect, build: func(e *selfTestEnv) *record.Command {
		cmd := difCommand(record.OpDIFUpdate, e)
		cmd.SetDestinationDIF(record.DIFDestinationRefTagFixed, 0x7, 0x9, 0)
		return cmd
	}},
	{name: "cache_flush", build: func(e *selfTestEnv) *record.Command {
		cmd := record.NewCommand(record.OpCacheFlush)
		cmd.SetDestination(e.dst.Addr())
		cmd.SetTransferSize(e.n)
		return cmd
	}},
	{name: "batch", build: func(e *selfTestEnv) *record.Command {
		e.list[0].Init(record.OpNop)
		e.list[1].Init(record.OpMemMove)
		e.list[1].SetSource(e.src.Addr())
		e.list[1].SetDestination(e.dst.Addr())
		e.list[1].SetTransferSize(e.n / 2)
		e.list[2].Init(record.OpFill)
		e.list[2].SetPattern(selfTestPattern)
		e.list[2].SetDestination(e.dst2.Addr())
		e.list[2].SetTransferSize(e.n)
		e.list[3].Init(record.OpDrain)

		cmd := record.NewCommand(record.OpBatch)
		cmd.SetBatch(e.list[0].Address(), uint32(len(e.list)))
		return cmd
	}},
}

// SelfTest runs every operation through p and through the software path on
// identical memory and reports every difference in the result records or in
// the memory they touched.
func SelfTest(ctx context.Context, l *logrus.Logger, p Path, opts SelfTestOptions) (*SelfTestReport, error) {
	opts = opts.withDefaults()
	l.WithField("size", opts.Size).
		WithField("workers", opts.Workers).
		WithField("iterations", opts.Iterations).
		Info("Starting self test")

	var (
		mu     sync.Mutex
		report SelfTestReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for it := range opts.Iterations {
		for _, tc := range selfTestCases {
			seed := opts.Seed + uint64(it)
			g.Go(func() error {
				reason, err := runSelfTestCase(gctx, p, tc, uint32(opts.Size), seed)
				if err != nil {
					return fmt.Errorf("%s[%d]: %w", tc.name, it, err)
				}

				mu.Lock()
				defer mu.Unlock()
				report.Runs++
				if reason != "" {
					report.Failures = append(report.Failures, SelfTestFailure{Name: tc.name, Iteration: it, Reason: reason})
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, f := range report.Failures {
		l.WithField("operation", f.Name).WithField("iteration", f.Iteration).Error(f.Reason)
	}
	l.WithField("runs", report.Runs).WithField("failures", len(report.Failures)).Info("Self test finished")
	return &report, nil
}

func runSelfTestCase(ctx context.Context, p Path, tc selfTestCase, n uint32, seed uint64) (string, error) {
	want, err := newSelfTestEnv(n, seed)
	if err != nil {
		return "", err
	}
	defer want.free()

	got, err := newSelfTestEnv(n, seed)
	if err != nil {
		return "", err
	}
	// Memory handed to a producer that never completed may still be written,
	// so it is left mapped.
	abandoned := false
	defer func() {
		if !abandoned {
			got.free()
		}
	}()

	if tc.prepare != nil {
		tc.prepare(want)
		tc.prepare(got)
	}

	wantCmd, wantRes := tc.build(want), record.NewResult()
	defer wantCmd.Release()
	defer wantRes.Release()
	if err := Validate(wantCmd); err != nil {
		return err.Error(), nil
	}
	NewSoftware().Submit(wantCmd, wantRes)

	gotCmd, gotRes := tc.build(got), record.NewResult()
	defer gotCmd.Release()
	if s := p.Submit(gotCmd, gotRes); s != SubmissionSuccess {
		gotRes.Release()
		return "", s.Err()
	}
	if err := p.Wait(ctx, gotCmd, gotRes); err != nil {
		abandoned = true
		return "", err
	}
	defer gotRes.Release()

	if *gotRes != *wantRes {
		return fmt.Sprintf("result %s, expected %s", gotRes, wantRes), nil
	}
	return got.equal(want), nil
}
