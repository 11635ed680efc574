package datamover

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/slackhq/datamover/record"
)

// WaitMode selects how a goroutine waits for a completion record it does not
// produce itself. Neither mode blocks in the operating system.
type WaitMode uint8

const (
	// WaitBusy spins on the completion byte.
	WaitBusy WaitMode = iota
	// WaitYield gives up the processor between probes of the completion byte.
	WaitYield
)

func (m WaitMode) String() string {
	switch m {
	case WaitBusy:
		return "busy"
	case WaitYield:
		return "yield"
	}
	return "unknown"
}

// ParseWaitMode parses the names returned by WaitMode.String.
func ParseWaitMode(s string) (WaitMode, error) {
	switch strings.ToLower(s) {
	case "busy":
		return WaitBusy, nil
	case "yield", "":
		return WaitYield, nil
	}
	return 0, fmt.Errorf("unknown wait mode %q, possible modes: busy, yield", s)
}

// probesPerContextCheck bounds how often ctx is consulted while spinning.
const probesPerContextCheck = 1024

// waitFor returns once res has completed or ctx is done.
func waitFor(ctx context.Context, mode WaitMode, res *record.Result) error {
	for i := 1; !res.Completed(); i++ {
		if i%probesPerContextCheck == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if mode == WaitYield {
			runtime.Gosched()
		}
	}
	return nil
}
