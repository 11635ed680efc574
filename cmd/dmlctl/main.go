package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/datamover"
	"github.com/slackhq/datamover/config"
	"github.com/slackhq/datamover/emulator"
	"github.com/slackhq/datamover/idxd"
	"github.com/slackhq/datamover/util"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to either a file or directory to load configuration from")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	printVersion := flag.Bool("version", false, "Print version")
	printUsage := flag.Bool("help", false, "Print command line usage")
	listQueues := flag.Bool("list", false, "Print the work queues the engine would use")
	selfTest := flag.Bool("selftest", false, "Run every operation through the configured path and compare with software")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	if *printUsage {
		flag.Usage()
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("-config flag must be set")
		flag.Usage()
		os.Exit(1)
	}

	l := logrus.New()
	l.Out = os.Stdout

	c := config.NewC(l)
	err := c.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %s", err)
		os.Exit(1)
	}

	if err := run(l, c, *configTest, *listQueues, *selfTest); err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		os.Exit(1)
	}

	os.Exit(0)
}

func run(l *logrus.Logger, c *config.C, configTest, listQueues, selfTest bool) error {
	if err := datamover.ConfigLogger(l, c); err != nil {
		return util.ContextualizeIfNeeded("Failed to configure the logger", err)
	}

	if err := datamover.StartStats(l, c, Build, configTest); err != nil {
		return util.ContextualizeIfNeeded("Failed to start stats emitter", err)
	}

	e, err := datamover.NewEngineFromConfig(l, c)
	if err != nil {
		return err
	}
	defer e.Close()

	if configTest {
		l.WithField("files", c.Files()).Info("Config is valid")
		return nil
	}

	if listQueues {
		for i, q := range e.Queues() {
			switch q := q.(type) {
			case *idxd.Queue:
				fmt.Printf("%d\tidxd\t%s\tnuma=%d\tmode=%s\t%s\n", i, q.Name(), q.NUMANode(), q.Mode(), q.Path())
			case *emulator.Queue:
				fmt.Printf("%d\temulated\t%s\tnuma=%d\tsize=%d\n", i, q.Name(), q.NUMANode(), q.Size())
			default:
				fmt.Printf("%d\t%T\tnuma=%d\n", i, q, q.NUMANode())
			}
		}
	}

	if selfTest {
		kind, err := datamover.ParsePathKind(c.GetString("selftest.path", c.GetString("engine.path", "automatic")))
		if err != nil {
			return util.NewContextualError("Invalid selftest.path", nil, err)
		}

		report, err := datamover.SelfTest(context.Background(), l, e.Path(kind), datamover.SelfTestOptions{
			Size:       c.GetInt("selftest.size", 0),
			Workers:    c.GetInt("selftest.workers", 0),
			Iterations: c.GetInt("selftest.iterations", 0),
		})
		if err != nil {
			return util.NewContextualError("Self test could not run", map[string]any{"path": kind.String()}, err)
		}
		if !report.OK() {
			return util.NewContextualError("Self test failed",
				map[string]any{"path": kind.String(), "failures": len(report.Failures)}, nil)
		}
	}

	return nil
}
