package ops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/remote"
)

var (
	// ErrNoInputs is returned when an operation is given nothing to work on.
	ErrNoInputs = errors.New("ops: no inputs")

	// ErrNoMatch is returned when a name matches no entry in the archive.
	ErrNoMatch = fmt.Errorf("%w: no matching entry", zpack.ErrFileNotFound)
)

// Summary describes an archive written by an operation.
type Summary struct {
	// Files is the number of entries in the new archive.
	Files int
	// Added counts entries compressed from input files.
	Added int
	// Skipped counts input files left out because their name was taken.
	Skipped int
	// Removed counts entries dropped by Delete.
	Removed int
	// Renamed counts entries renamed by Move.
	Renamed int
	// CompSize and UncompSize total the entries of the new archive.
	CompSize   uint64
	UncompSize uint64
	// Size is the length of the archive file.
	Size uint64
}

// Ratio returns the archive size as a fraction of the uncompressed content.
func (s Summary) Ratio() float64 {
	if s.UncompSize == 0 {
		return 0
	}
	return float64(s.Size) / float64(s.UncompSize)
}

// fillFunc writes the data section of a new archive. tmpPath names the
// file being written so that discovery can leave it out.
type fillFunc func(w *zpack.Writer, tmpPath string) error

// commit writes a complete archive to a temporary file next to archive and
// renames it over archive once everything succeeded. src, when set, is
// closed before the rename.
func commit(archive string, cfg *config, src *zpack.Reader, sum *Summary, fill fillFunc) error {
	if remote.IsURL(archive) {
		return fmt.Errorf("%w: cannot write remote archive %s", zpack.ErrNotAvailable, archive)
	}
	tmp, err := os.CreateTemp(filepath.Dir(archive), ".zpack-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	var w zpack.Writer
	if err := w.CreateFile(tmp, cfg.readerOptions()...); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := writeArchive(&w, tmpPath, fill); err != nil {
		_ = w.Close()          //nolint:errcheck // already failing
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}

	sum.Files = w.Len()
	sum.CompSize = w.CompressedSize()
	sum.UncompSize = w.UncompressedSize()
	sum.Size = w.Offset()
	if err := w.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp archive: %w", err)
	}
	if src != nil {
		_ = src.Close() //nolint:errcheck // read-only handle
	}
	if err := os.Rename(tmpPath, archive); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", archive, err)
	}
	cfg.log().Debug("archive written", "path", archive, "files", sum.Files, "size", sum.Size)
	return nil
}

func writeArchive(w *zpack.Writer, tmpPath string, fill fillFunc) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteDataMarker(); err != nil {
		return err
	}
	if err := fill(w, tmpPath); err != nil {
		return err
	}
	if err := w.WriteDirectory(); err != nil {
		return err
	}
	return w.WriteEndRecord()
}

// openArchive opens archive for reading with the configured options.
// http and https URLs are read with range requests.
func openArchive(ctx context.Context, archive string, cfg *config) (*zpack.Reader, error) {
	r := new(zpack.Reader)
	if remote.IsURL(archive) {
		src, err := remote.Open(ctx, archive)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w: %w", archive, zpack.ErrOpenFailed, err)
		}
		if err := r.OpenReaderAt(src, src.Size(), cfg.readerOptions()...); err != nil {
			return nil, fmt.Errorf("open %s: %w", archive, err)
		}
		return r, nil
	}
	if err := r.Open(archive, cfg.readerOptions()...); err != nil {
		return nil, fmt.Errorf("open %s: %w", archive, err)
	}
	return r, nil
}

// copyEntries copies entries from r into w without recompressing. rename,
// when set, maps each entry to its new name.
func copyEntries(w *zpack.Writer, r *zpack.Reader, entries []zpack.FileEntry, cfg *config, rename func(string) string) error {
	var done uint64
	var total uint64
	for i := range entries {
		total += entries[i].UncompSize
	}
	for i := range entries {
		e := &entries[i]
		name := e.Filename
		if rename != nil {
			name = rename(name)
		}
		if err := w.CopyEntryAs(r, e, name); err != nil {
			return fmt.Errorf("copy %s: %w", e.Filename, err)
		}
		done += e.UncompSize
		cfg.emit(ProgressEvent{
			Stage:      StageCopying,
			Path:       name,
			BytesDone:  done,
			BytesTotal: total,
			FilesDone:  i + 1,
			FilesTotal: len(entries),
		})
	}
	return nil
}
