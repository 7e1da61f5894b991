package ops

import (
	"bytes"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/testutil"
)

func TestStoreTwoFilesListExtract(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		"a.txt":     bytes.Repeat([]byte("x"), 100),
		"dir/b.bin": randomBytes(1, 5000),
	}
	src := writeSource(t, files)
	archive := archivePath(t)

	sum, err := Create(context.Background(), archive, []string{src},
		WithCompression(zpack.CompressOptions{Method: zpack.MethodNone}))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, sum.CompSize, sum.UncompSize)

	listing, err := List(context.Background(), archive)
	require.NoError(t, err)
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, []string{"a.txt", "dir/b.bin"}, entryNames(listing.Entries))
	for _, e := range listing.Entries {
		assert.Equal(t, e.UncompSize, e.CompSize, e.Filename)
		assert.Equal(t, uint64(len(files[e.Filename])), e.UncompSize, e.Filename)
		assert.Equal(t, zpack.MethodNone, e.Method)
	}
	assert.Equal(t, uint64(5100), listing.UncompSize)
	assert.Equal(t, uint16(zpack.Version), listing.Version)

	out := t.TempDir()
	res, err := Extract(context.Background(), archive, nil, WithOutput(out))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, uint64(5100), res.Bytes)
	assert.Equal(t, files, testutil.ReadTree(t, out))
}

func TestEmptyFileRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []zpack.Method{zpack.MethodZstd, zpack.MethodLZ4, zpack.MethodNone} {
		t.Run(m.String(), func(t *testing.T) {
			t.Parallel()
			src := writeSource(t, map[string][]byte{"empty": {}})
			archive := archivePath(t)

			_, err := Create(context.Background(), archive, []string{src},
				WithCompression(zpack.CompressOptions{Method: m}))
			require.NoError(t, err)

			listing, err := List(context.Background(), archive)
			require.NoError(t, err)
			require.Len(t, listing.Entries, 1)
			assert.Zero(t, listing.Entries[0].CompSize)
			assert.Zero(t, listing.Entries[0].UncompSize)

			out := t.TempDir()
			_, err = Extract(context.Background(), archive, nil, WithOutput(out))
			require.NoError(t, err)
			info, err := os.Stat(filepath.Join(out, "empty"))
			require.NoError(t, err)
			assert.Zero(t, info.Size())
		})
	}
}

func TestCreateRoundTripAllMethods(t *testing.T) {
	t.Parallel()

	for _, method := range []string{"zstd", "zstd:19", "lz4", "lz4:9", "store"} {
		t.Run(method, func(t *testing.T) {
			t.Parallel()
			opts, err := zpack.ParseCompressOptions(method)
			require.NoError(t, err)

			files := sampleTree()
			archive := archivePath(t)
			_, err = Create(context.Background(), archive, []string{writeSource(t, files)}, WithCompression(opts))
			require.NoError(t, err)

			report, err := Test(context.Background(), archive)
			require.NoError(t, err)
			assert.True(t, report.OK())
			assert.Equal(t, len(files), report.Checked)

			out := t.TempDir()
			_, err = Extract(context.Background(), archive, nil, WithOutput(out))
			require.NoError(t, err)
			assert.Equal(t, files, testutil.ReadTree(t, out))
		})
	}
}

func TestCreateSkipsArchiveAndDuplicates(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, map[string][]byte{"one.txt": []byte("1"), "two.txt": []byte("2")})
	archive := filepath.Join(src, "self.zpk")
	require.NoError(t, os.WriteFile(archive, []byte("stale"), 0o600))

	root := src + string(filepath.Separator) + "."
	sum, err := Create(context.Background(), archive, []string{root, root})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, 2, sum.Skipped)

	listing, err := List(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"one.txt", "two.txt"}, entryNames(listing.Entries))
	assert.Empty(t, tempLeftovers(t, archive))
}

func TestCreateExclude(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())},
		WithExclude("*.log", "sub"))
	require.NoError(t, err)

	listing, err := List(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dir/b.bin"}, entryNames(listing.Entries))
}

func TestCreateFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())})
	require.NoError(t, err)
	before := readArchive(t, archive)

	_, err = Create(context.Background(), archive, []string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Equal(t, before, readArchive(t, archive))
	assert.Empty(t, tempLeftovers(t, archive))

	_, err = Create(context.Background(), archive, nil)
	require.ErrorIs(t, err, ErrNoInputs)
}

func TestCreateCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	archive := archivePath(t)
	_, err := Create(ctx, archive, []string{writeSource(t, sampleTree())})
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(archive)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAdd(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	first := map[string][]byte{"a.txt": []byte("first a"), "b.txt": []byte("first b")}
	sum, err := Add(context.Background(), archive, []string{writeSource(t, first)})
	require.NoError(t, err, "add creates a missing archive")
	assert.Equal(t, 2, sum.Added)

	before, err := List(context.Background(), archive)
	require.NoError(t, err)

	second := map[string][]byte{"b.txt": []byte("second b"), "c.txt": []byte("second c")}
	sum, err = Add(context.Background(), archive, []string{writeSource(t, second)},
		WithCompression(zpack.CompressOptions{Method: zpack.MethodLZ4}))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.Files)

	after, err := List(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, entryNames(after.Entries))
	for i := range before.Entries {
		b, a := before.Entries[i], after.Entries[i]
		assert.Equal(t, b.Hash, a.Hash)
		assert.Equal(t, b.CompSize, a.CompSize)
		assert.Equal(t, b.Method, a.Method)
	}
	assert.Equal(t, zpack.MethodLZ4, after.Entries[2].Method)

	out := t.TempDir()
	_, err = Extract(context.Background(), archive, nil, WithOutput(out))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"a.txt": []byte("first a"),
		"b.txt": []byte("first b"),
		"c.txt": []byte("second c"),
	}, testutil.ReadTree(t, out))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())})
	require.NoError(t, err)

	sum, err := Delete(context.Background(), archive, []string{"dir/", "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Removed)
	assert.Equal(t, 1, sum.Files)

	listing, err := List(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/run.log"}, entryNames(listing.Entries))

	report, err := Test(context.Background(), archive)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestDeleteErrorsKeepArchive(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())})
	require.NoError(t, err)
	before := readArchive(t, archive)

	tests := []struct {
		name    string
		names   []string
		wantErr error
	}{
		{"no names", nil, ErrNoInputs},
		{"unknown name", []string{"a.txt", "nope"}, zpack.ErrFileNotFound},
		{"prefix of a name is not a directory", []string{"di"}, zpack.ErrFileNotFound},
		{"illegal", []string{"../a.txt"}, zpack.ErrIllegalFilename},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Delete(context.Background(), archive, tt.names)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, readArchive(t, archive))
		})
	}
}

func TestMove(t *testing.T) {
	t.Parallel()

	files := sampleTree()
	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, files)})
	require.NoError(t, err)
	before, err := List(context.Background(), archive)
	require.NoError(t, err)

	sum, err := Move(context.Background(), archive, []Rename{
		{Old: "a.txt", New: "renamed/a.txt"},
		{Old: "dir", New: "folder"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Renamed)

	after, err := List(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, []string{"renamed/a.txt", "folder/b.bin", "folder/sub/text.md", "logs/run.log"}, entryNames(after.Entries))
	for i := range before.Entries {
		assert.Equal(t, before.Entries[i].Hash, after.Entries[i].Hash)
		assert.Equal(t, before.Entries[i].CompSize, after.Entries[i].CompSize)
	}

	out := t.TempDir()
	_, err = Extract(context.Background(), archive, []string{"folder"}, WithOutput(out))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"folder/b.bin":       files["dir/b.bin"],
		"folder/sub/text.md": files["dir/sub/text.md"],
	}, testutil.ReadTree(t, out))
}

func TestMoveErrorsKeepArchive(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())})
	require.NoError(t, err)
	before := readArchive(t, archive)

	tests := []struct {
		name    string
		renames []Rename
		wantErr error
	}{
		{"no renames", nil, ErrNoInputs},
		{"unknown", []Rename{{Old: "zzz", New: "y"}}, zpack.ErrFileNotFound},
		{"collision", []Rename{{Old: "a.txt", New: "dir/b.bin"}}, zpack.ErrDuplicateFilename},
		{"illegal target", []Rename{{Old: "a.txt", New: "../a.txt"}}, zpack.ErrIllegalFilename},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Move(context.Background(), archive, tt.renames)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, readArchive(t, archive))
			assert.Empty(t, tempLeftovers(t, archive))
		})
	}
}

// corruptEntry flips one byte in the stored data of name.
func corruptEntry(t *testing.T, archive, name string) {
	t.Helper()
	listing, err := List(context.Background(), archive)
	require.NoError(t, err)
	data := readArchive(t, archive)
	for _, e := range listing.Entries {
		if e.Filename == name {
			require.NotZero(t, e.CompSize)
			data[e.Offset+e.CompSize/2] ^= 0xff
			require.NoError(t, os.WriteFile(archive, data, 0o600))
			return
		}
	}
	t.Fatalf("entry %s not found", name)
}

func TestTestReportsCorruptEntries(t *testing.T) {
	t.Parallel()

	for _, method := range []string{"store", "zstd", "lz4"} {
		t.Run(method, func(t *testing.T) {
			t.Parallel()
			opts, err := zpack.ParseCompressOptions(method)
			require.NoError(t, err)

			archive := archivePath(t)
			_, err = Create(context.Background(), archive, []string{writeSource(t, sampleTree())}, WithCompression(opts))
			require.NoError(t, err)
			corruptEntry(t, archive, "dir/b.bin")

			rec := &countingRecorder{}
			var mu sync.Mutex
			var events int
			report, err := Test(context.Background(), archive,
				WithWorkers(3),
				WithRecorder(rec),
				WithProgress(func(ev ProgressEvent) {
					mu.Lock()
					defer mu.Unlock()
					assert.Equal(t, StageTesting, ev.Stage)
					events++
				}))
			require.NoError(t, err)
			assert.False(t, report.OK())
			assert.Equal(t, 4, report.Checked)
			assert.Equal(t, 1, report.Corrupt)
			require.Len(t, report.Failures, 1)
			assert.Equal(t, "dir/b.bin", report.Failures[0].Name)
			assert.Equal(t, 4, events)
			assert.Equal(t, 3, rec.read)
			assert.Equal(t, 1, rec.corrupt)
			assert.ErrorIs(t, report.Failures[0].Err, zpack.ErrFileHashMismatch)
			assert.Equal(t, zpack.KindIntegrity, zpack.KindOf(report.Failures[0].Err))
		})
	}
}

func TestTestUnreadableArchive(t *testing.T) {
	t.Parallel()

	path := archivePath(t)
	require.NoError(t, os.WriteFile(path, []byte("not an archive at all, sorry"), 0o600))
	_, err := Test(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, zpack.KindFormat, zpack.KindOf(err))
}

func TestExtractCorruptKeepsExistingFile(t *testing.T) {
	t.Parallel()

	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())},
		WithCompression(zpack.CompressOptions{Method: zpack.MethodNone}))
	require.NoError(t, err)
	corruptEntry(t, archive, "dir/b.bin")

	out := t.TempDir()
	testutil.WriteTree(t, out, map[string][]byte{"dir/b.bin": []byte("keep me")})

	_, err = Extract(context.Background(), archive, []string{"dir/b.bin"}, WithOutput(out))
	require.ErrorIs(t, err, zpack.ErrFileHashMismatch)
	assert.Equal(t, map[string][]byte{"dir/b.bin": []byte("keep me")}, testutil.ReadTree(t, out))
}

func TestExtractFlattenAndExclude(t *testing.T) {
	t.Parallel()

	files := sampleTree()
	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, files)})
	require.NoError(t, err)

	out := t.TempDir()
	res, err := Extract(context.Background(), archive, nil,
		WithOutput(out), WithFlatten(true), WithExclude("*.log"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, map[string][]byte{
		"a.txt":   files["a.txt"],
		"b.bin":   files["dir/b.bin"],
		"text.md": files["dir/sub/text.md"],
	}, testutil.ReadTree(t, out))

	_, err = Extract(context.Background(), archive, []string{"missing"}, WithOutput(out))
	require.ErrorIs(t, err, zpack.ErrFileNotFound)
}

// traversalArchive writes an archive holding one entry named "../evil".
func traversalArchive(t *testing.T) string {
	t.Helper()
	var w zpack.Writer
	require.NoError(t, w.CreateHeap(0))
	require.NoError(t, w.WriteArchive([]zpack.File{{Name: "xx/evil", Data: []byte("payload")}},
		zpack.CompressOptions{Method: zpack.MethodNone}))
	data := bytes.Replace(w.Bytes(), []byte("xx/evil"), []byte("../evil"), 1)
	require.NoError(t, w.Close())

	path := archivePath(t)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExtractTraversal(t *testing.T) {
	t.Parallel()

	archive := traversalArchive(t)
	base := t.TempDir()
	out := filepath.Join(base, "out")

	_, err := Extract(context.Background(), archive, nil, WithOutput(out))
	require.ErrorIs(t, err, zpack.ErrIllegalFilename)
	_, statErr := os.Stat(filepath.Join(base, "evil"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = Extract(context.Background(), archive, nil, WithOutput(out), WithUnsafe(true))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(base, "evil"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestProgressAndRecorder(t *testing.T) {
	t.Parallel()

	rec := &countingRecorder{}
	var stages []ProgressStage
	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, sampleTree())},
		WithRecorder(rec),
		WithProgress(func(ev ProgressEvent) { stages = append(stages, ev.Stage) }))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.written)
	require.NotEmpty(t, stages)
	assert.Equal(t, StageEnumerating, stages[0])
	assert.Equal(t, StageCompressing, stages[len(stages)-1])

	_, err = Extract(context.Background(), archive, nil, WithOutput(t.TempDir()), WithRecorder(rec))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.read)
}

func TestProgressStageString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "testing", StageTesting.String())
	assert.Equal(t, "unknown", ProgressStage(200).String())
}

func TestRemoteArchive(t *testing.T) {
	t.Parallel()

	files := sampleTree()
	archive := archivePath(t)
	_, err := Create(context.Background(), archive, []string{writeSource(t, files)})
	require.NoError(t, err)
	data := readArchive(t, archive)

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "test.zpk", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	url := server.URL + "/test.zpk"

	listing, err := List(context.Background(), url)
	require.NoError(t, err)
	assert.Len(t, listing.Entries, len(files))

	report, err := Test(context.Background(), url, WithWorkers(2))
	require.NoError(t, err)
	assert.True(t, report.OK())

	out := t.TempDir()
	_, err = Extract(context.Background(), url, nil, WithOutput(out))
	require.NoError(t, err)
	assert.Equal(t, files, testutil.ReadTree(t, out))

	_, err = Delete(context.Background(), url, []string{"a.txt"})
	require.ErrorIs(t, err, zpack.ErrNotAvailable)
}
