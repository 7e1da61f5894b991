package zpack

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomBytes(seed uint64, n int) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.IntN(256))
	}
	return b
}

func sampleFiles() []File {
	return []File{
		{Name: "a.txt", Data: bytes.Repeat([]byte("x"), 100)},
		{Name: "dir/b.bin", Data: randomBytes(1, 5000)},
		{Name: "dir/sub/text.md", Data: bytes.Repeat([]byte("zpack archives hold many files. "), 3000)},
		{Name: "empty", Data: nil},
	}
}

var allMethods = []Method{MethodZstd, MethodLZ4, MethodNone}

// buildArchive writes files to a heap archive and returns its bytes.
func buildArchive(t *testing.T, files []File, opts CompressOptions) []byte {
	t.Helper()
	var w Writer
	require.NoError(t, w.CreateHeap(0))
	require.NoError(t, w.WriteArchive(files, opts))
	out := bytes.Clone(w.Bytes())
	require.NoError(t, w.Close())
	return out
}

func openBytes(t *testing.T, b []byte) *Reader {
	t.Helper()
	r := &Reader{}
	require.NoError(t, r.OpenBytes(b))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// readStream decodes e with the given window sizes.
func readStream(t *testing.T, r *Reader, e *FileEntry, inSize, outSize int) ([]byte, error) {
	t.Helper()
	s := NewStream(make([]byte, inSize), make([]byte, outSize))
	var out bytes.Buffer
	for steps := 0; !s.Done(); steps++ {
		if err := r.ReadFileStream(e, s); err != nil {
			return out.Bytes(), err
		}
		out.Write(s.Output())
		s.Rewind()
		require.Less(t, steps, 10_000_000, "stream did not finish")
	}
	return out.Bytes(), nil
}
