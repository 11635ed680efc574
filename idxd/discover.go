package idxd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSysfs = "/sys/bus/dsa/devices"
	DefaultDevfs = "/dev/dsa"
)

// WorkQueue describes a work queue as sysfs reports it.
type WorkQueue struct {
	Name     string
	Device   string
	State    string
	Type     string
	Mode     string
	Size     int
	NUMANode int
}

// Usable reports whether the queue accepts submissions from user space.
func (w WorkQueue) Usable() bool {
	return w.State == "enabled" && w.Type == "user"
}

// Scan lists every work queue below sysfs, sorted by name.
func Scan(sysfs string) ([]WorkQueue, error) {
	entries, err := os.ReadDir(sysfs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sysfs, err)
	}

	var out []WorkQueue
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "wq") {
			continue
		}
		dev, ok := parentDevice(name)
		if !ok {
			continue
		}

		dir := filepath.Join(sysfs, name)
		wq := WorkQueue{
			Name:     name,
			Device:   dev,
			State:    readAttr(dir, "state"),
			Type:     readAttr(dir, "type"),
			Mode:     readAttr(dir, "mode"),
			NUMANode: -1,
		}
		if s, err := strconv.Atoi(readAttr(dir, "size")); err == nil {
			wq.Size = s
		}
		if n, err := strconv.Atoi(readAttr(filepath.Join(sysfs, dev), "numa_node")); err == nil {
			wq.NUMANode = n
		}
		out = append(out, wq)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// parentDevice maps wqD.Q to dsaD.
func parentDevice(wq string) (string, bool) {
	d, _, ok := strings.Cut(strings.TrimPrefix(wq, "wq"), ".")
	if !ok {
		return "", false
	}
	if _, err := strconv.Atoi(d); err != nil {
		return "", false
	}
	return "dsa" + d, true
}

func readAttr(dir, attr string) string {
	b, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Discover opens every usable work queue. A missing sysfs tree means the
// driver is not loaded, which is not an error; it yields no queues.
func Discover(l *logrus.Logger, sysfs, devfs string) ([]*Queue, error) {
	logCPU(l)

	wqs, err := Scan(sysfs)
	if errors.Is(err, fs.ErrNotExist) {
		l.WithField("sysfs", sysfs).Info("No idxd devices found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []*Queue
	for _, wq := range wqs {
		wl := l.WithField("queue", wq.Name).WithField("numa", wq.NUMANode)
		if !wq.Usable() {
			if l.Level >= logrus.DebugLevel {
				wl.WithField("state", wq.State).WithField("type", wq.Type).Debug("Skipping work queue")
			}
			continue
		}

		q, err := Open(wq.Name, filepath.Join(devfs, wq.Name), wq.Mode, wq.NUMANode)
		if err != nil {
			wl.WithError(err).Warn("Failed to open work queue")
			continue
		}
		wl.WithField("mode", wq.Mode).WithField("size", wq.Size).Info("Work queue opened")
		out = append(out, q)
	}
	return out, nil
}

// Features reports the CPU instructions relevant to work queue submission
// and completion waiting.
func Features() map[string]bool {
	return map[string]bool{
		"movdir64b": cpuid.CPU.Supports(cpuid.MOVDIR64B),
		"enqcmd":    cpuid.CPU.Supports(cpuid.ENQCMD),
		"waitpkg":   cpuid.CPU.Supports(cpuid.WAITPKG),
	}
}

func logCPU(l *logrus.Logger) {
	fields := logrus.Fields{"cpu": cpuid.CPU.BrandName}
	for k, v := range Features() {
		fields[k] = v
	}
	l.WithFields(fields).Info("Accelerator submission CPU features")
}
