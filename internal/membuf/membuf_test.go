package membuf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapacity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		initial int
		want    int
	}{
		{0, 16},
		{-5, 16},
		{10, 16},
		{16, 16},
		{17, 32},
		{1000, 1024},
	}
	for _, tt := range tests {
		b := New(tt.initial)
		assert.Equal(t, tt.want, b.Cap(), "initial=%d", tt.initial)
		assert.Zero(t, b.Len())
	}
}

func TestWriteGrowsToPowerOfTwo(t *testing.T) {
	t.Parallel()

	b := New(0)
	var want bytes.Buffer
	for i := range 100 {
		chunk := bytes.Repeat([]byte{byte(i)}, i)
		n, err := b.Write(chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
		want.Write(chunk)

		c := b.Cap()
		assert.Zero(t, c&(c-1), "capacity %d is not a power of two", c)
		assert.GreaterOrEqual(t, c, b.Len())
	}
	assert.Equal(t, want.Bytes(), b.Bytes())
}

func TestReserve(t *testing.T) {
	t.Parallel()

	b := New(0)
	require.NoError(t, b.Reserve(100))
	assert.Equal(t, 128, b.Cap())
	require.ErrorIs(t, b.Reserve(-1), ErrTooLarge)

	b.Release()
	assert.Zero(t, b.Len())
}
