package idxd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/slackhq/datamover/queue"
	"github.com/slackhq/datamover/record"
	"github.com/slackhq/datamover/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeAttrs(t *testing.T, dir string, attrs map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for k, v := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v+"\n"), 0o644))
	}
}

func fixture(t *testing.T) (string, string) {
	sysfs, devfs := t.TempDir(), t.TempDir()
	writeAttrs(t, filepath.Join(sysfs, "dsa0"), map[string]string{"numa_node": "0"})
	writeAttrs(t, filepath.Join(sysfs, "dsa2"), map[string]string{"numa_node": "1"})
	writeAttrs(t, filepath.Join(sysfs, "wq0.0"), map[string]string{
		"state": "enabled", "type": "user", "mode": "dedicated", "size": "16",
	})
	writeAttrs(t, filepath.Join(sysfs, "wq0.1"), map[string]string{
		"state": "disabled", "type": "user", "mode": "shared", "size": "16",
	})
	writeAttrs(t, filepath.Join(sysfs, "wq2.0"), map[string]string{
		"state": "enabled", "type": "user", "mode": "shared", "size": "128",
	})
	writeAttrs(t, filepath.Join(sysfs, "wq2.1"), map[string]string{
		"state": "enabled", "type": "kernel", "mode": "dedicated", "size": "8",
	})
	writeAttrs(t, filepath.Join(sysfs, "wqX"), map[string]string{"state": "enabled"})

	for _, n := range []string{"wq0.0", "wq2.0"} {
		require.NoError(t, os.WriteFile(filepath.Join(devfs, n), nil, 0o644))
	}
	return sysfs, devfs
}

func TestScan(t *testing.T) {
	sysfs, _ := fixture(t)
	wqs, err := Scan(sysfs)
	require.NoError(t, err)
	require.Len(t, wqs, 4)

	assert.Equal(t, WorkQueue{
		Name: "wq0.0", Device: "dsa0", State: "enabled", Type: "user", Mode: "dedicated", Size: 16, NUMANode: 0,
	}, wqs[0])
	assert.False(t, wqs[1].Usable())
	assert.Equal(t, 1, wqs[2].NUMANode)
	assert.True(t, wqs[2].Usable())
	assert.False(t, wqs[3].Usable())
}

func TestDiscover(t *testing.T) {
	sysfs, devfs := fixture(t)
	qs, err := Discover(test.NewLogger(), sysfs, devfs)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	t.Cleanup(func() {
		for _, q := range qs {
			_ = q.Close()
		}
	})

	assert.Equal(t, "wq0.0", qs[0].Name())
	assert.Equal(t, 0, qs[0].NUMANode())
	assert.Equal(t, "wq2.0", qs[1].Name())
	assert.Equal(t, 1, qs[1].NUMANode())
	assert.Equal(t, "shared", qs[1].Mode())

	cmd := record.NewCommand(record.OpMemMove)
	cmd.SetTransferSize(77)
	require.NoError(t, qs[0].Enqueue(cmd))
	b, err := os.ReadFile(filepath.Join(devfs, "wq0.0"))
	require.NoError(t, err)
	assert.Equal(t, cmd[:], b)

	require.NoError(t, qs[0].Close())
	assert.ErrorIs(t, qs[0].Enqueue(cmd), queue.ErrAbsent)
}

func TestDiscover_NoDriver(t *testing.T) {
	qs, err := Discover(test.NewLogger(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.NoError(t, err)
	assert.Empty(t, qs)
}

func TestEnqueueError(t *testing.T) {
	assert.ErrorIs(t, enqueueError(unix.EAGAIN), queue.ErrBusy)
	assert.ErrorIs(t, enqueueError(unix.EBUSY), queue.ErrBusy)
	assert.ErrorIs(t, enqueueError(unix.ENODEV), queue.ErrAbsent)
	assert.ErrorIs(t, enqueueError(unix.EBADF), queue.ErrAbsent)
	assert.ErrorIs(t, enqueueError(unix.EIO), unix.EIO)
}

func TestFeatures(t *testing.T) {
	assert.Len(t, Features(), 3)
}
