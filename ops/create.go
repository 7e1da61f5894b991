package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/walk"
)

// Create writes a new archive at path holding every regular file found
// under inputs, replacing any existing archive. Files whose archive name
// was already written are skipped with a warning, and the archive itself
// is never added.
func Create(ctx context.Context, archive string, inputs []string, opts ...Option) (Summary, error) {
	cfg := newConfig(opts)
	if len(inputs) == 0 {
		return Summary{}, ErrNoInputs
	}
	var sum Summary
	err := commit(archive, &cfg, nil, &sum, func(w *zpack.Writer, tmpPath string) error {
		return addInputs(ctx, &cfg, w, inputs, []string{archive, tmpPath}, &sum)
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Add appends the files found under inputs to an existing archive,
// keeping its entries as they are. Names already present are skipped. A
// missing archive is created.
func Add(ctx context.Context, archive string, inputs []string, opts ...Option) (Summary, error) {
	if _, err := os.Stat(archive); errors.Is(err, fs.ErrNotExist) {
		return Create(ctx, archive, inputs, opts...)
	}
	cfg := newConfig(opts)
	if len(inputs) == 0 {
		return Summary{}, ErrNoInputs
	}
	r, err := openArchive(ctx, archive, &cfg)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()

	var sum Summary
	err = commit(archive, &cfg, r, &sum, func(w *zpack.Writer, tmpPath string) error {
		if err := copyEntries(w, r, r.Entries(), &cfg, nil); err != nil {
			return err
		}
		return addInputs(ctx, &cfg, w, inputs, []string{archive, tmpPath}, &sum)
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func addInputs(ctx context.Context, cfg *config, w *zpack.Writer, inputs, skip []string, sum *Summary) error {
	cfg.emit(ProgressEvent{Stage: StageEnumerating})
	files, err := walk.Collect(inputs, walk.Options{Exclude: cfg.exclude, Skip: skip})
	if err != nil {
		return fmt.Errorf("find files: %w", err)
	}
	cfg.log().Debug("found files", "count", len(files))

	var done uint64
	for i := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := &files[i]
		if w.Has(f.Name) {
			cfg.log().Warn("file already in archive, skipping", "name", f.Name, "path", f.Path)
			sum.Skipped++
			continue
		}
		n, err := addFile(cfg, w, f)
		if err != nil {
			return err
		}
		sum.Added++
		done += n
		cfg.emit(ProgressEvent{
			Stage:      StageCompressing,
			Path:       f.Name,
			BytesDone:  done,
			FilesDone:  i + 1,
			FilesTotal: len(files),
		})
	}
	return nil
}

// addFile streams one file into w and returns its uncompressed size.
func addFile(cfg *config, w *zpack.Writer, f *walk.File) (uint64, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return 0, fmt.Errorf("add %s: %w", f.Path, err)
	}
	defer src.Close()

	comp, uncomp := w.CompressedSize(), w.UncompressedSize()
	ew, err := w.CreateEntry(f.Name, cfg.compress)
	if err != nil {
		return 0, fmt.Errorf("add %s: %w", f.Name, err)
	}
	if _, err := io.Copy(ew, src); err != nil {
		return 0, fmt.Errorf("add %s: %w", f.Name, err)
	}
	if err := ew.Close(); err != nil {
		return 0, fmt.Errorf("add %s: %w", f.Name, err)
	}
	comp = w.CompressedSize() - comp
	uncomp = w.UncompressedSize() - uncomp
	if cfg.recorder != nil {
		cfg.recorder.FileWritten(cfg.compress.Method.String(), uncomp, comp)
	}
	cfg.log().Debug("added file", "name", f.Name, "size", uncomp, "compressed", comp)
	return uncomp, nil
}
