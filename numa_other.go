//go:build !linux

package datamover

// CurrentNode returns -1, NUMA topology is only known on Linux.
func CurrentNode() int {
	return -1
}
