package ops

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/testutil"
)

func randomBytes(seed uint64, n int) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.IntN(256))
	}
	return b
}

func sampleTree() map[string][]byte {
	return map[string][]byte{
		"a.txt":           bytes.Repeat([]byte("x"), 100),
		"dir/b.bin":       randomBytes(7, 5000),
		"dir/sub/text.md": bytes.Repeat([]byte("some text to squeeze. "), 2000),
		"logs/run.log":    []byte("log line\n"),
	}
}

// writeSource lays files out in a fresh directory and returns it with a
// trailing "." so archive names are relative to it.
func writeSource(t *testing.T, files map[string][]byte) string {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, files)
	return src + string(filepath.Separator) + "."
}

func archivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.zpk")
}

func entryNames(entries []zpack.FileEntry) []string {
	out := make([]string, len(entries))
	for i := range entries {
		out[i] = entries[i].Filename
	}
	return out
}

func readArchive(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// tempLeftovers lists rewrite temporaries left beside path.
func tempLeftovers(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".zpack-*"))
	require.NoError(t, err)
	return matches
}

type countingRecorder struct {
	mu      sync.Mutex
	written int
	read    int
	corrupt int
}

func (c *countingRecorder) FileWritten(string, uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written++
}

func (c *countingRecorder) FileRead(uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read++
}

func (c *countingRecorder) Corrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrupt++
}
