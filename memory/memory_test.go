package memory

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlloc(t *testing.T) {
	b, err := Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, 100, b.Len())
	assert.Zero(t, b.Addr()%uint64(os.Getpagesize()))
	assert.Equal(t, make([]byte, 100), b.Bytes())

	copy(b.Bytes(), "hello")
	assert.Equal(t, []byte("hello"), View(b.Addr(), 5))
	assert.Equal(t, []byte("llo"), View(b.At(2), 3))
	assert.Nil(t, View(b.Addr(), 0))

	require.NoError(t, b.Free())
	assert.ErrorIs(t, b.Free(), ErrFreed)
	assert.Panics(t, func() { b.Addr() })
}

func TestAlloc_InvalidSize(t *testing.T) {
	_, err := Alloc(0)
	assert.Error(t, err)
	assert.Panics(t, func() { MustAlloc(-1) })
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(100, 10, 105, 10))
	assert.True(t, Overlaps(105, 10, 100, 10))
	assert.False(t, Overlaps(100, 10, 110, 10))
	assert.False(t, Overlaps(110, 10, 100, 10))
	assert.False(t, Overlaps(100, 0, 100, 10))
}
