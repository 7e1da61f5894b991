package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/pathutil"
	"github.com/meigma/zpack/internal/walk"
)

// ExtractResult describes what Extract wrote.
type ExtractResult struct {
	Files int
	Bytes uint64
}

// Extract writes entries of archive below the output directory. With no
// names every entry is extracted; otherwise only entries matching a name,
// directly or as a directory prefix, and every name must match.
//
// Each entry is decompressed and hash-checked on the way to a temporary
// file that is renamed into place once verified, so a corrupt entry never
// replaces an existing file. Extraction stops at the first failure.
func Extract(ctx context.Context, archive string, names []string, opts ...Option) (ExtractResult, error) {
	cfg := newConfig(opts)
	r, err := openArchive(ctx, archive, &cfg)
	if err != nil {
		return ExtractResult{}, err
	}
	defer r.Close()

	selected, err := selectEntries(r.Entries(), names, cfg.exclude)
	if err != nil {
		return ExtractResult{}, err
	}

	dest := cfg.output
	if dest == "" {
		dest = "."
	}
	sink, err := newFileSink(dest, cfg.unsafe)
	if err != nil {
		return ExtractResult{}, err
	}
	defer sink.Close()

	var total uint64
	for i := range selected {
		total += selected[i].UncompSize
	}
	var res ExtractResult
	for i := range selected {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := &selected[i]
		if err := extractEntry(r, sink, e, &cfg); err != nil {
			return res, fmt.Errorf("extract %s: %w", e.Filename, err)
		}
		res.Files++
		res.Bytes += e.UncompSize
		if cfg.recorder != nil {
			cfg.recorder.FileRead(e.UncompSize, e.CompSize)
		}
		cfg.emit(ProgressEvent{
			Stage:      StageExtracting,
			Path:       e.Filename,
			BytesDone:  res.Bytes,
			BytesTotal: total,
			FilesDone:  res.Files,
			FilesTotal: len(selected),
		})
	}
	cfg.log().Debug("extracted", "archive", archive, "files", res.Files, "bytes", res.Bytes)
	return res, nil
}

// selectEntries filters entries by names and exclude patterns.
func selectEntries(entries []zpack.FileEntry, names, exclude []string) ([]zpack.FileEntry, error) {
	targets := make([]string, len(names))
	for i, name := range names {
		targets[i] = strings.TrimSuffix(name, "/")
	}
	matched := make([]bool, len(targets))
	out := make([]zpack.FileEntry, 0, len(entries))
	for _, e := range entries {
		if walk.Excluded(e.Filename, exclude) {
			continue
		}
		if len(targets) == 0 {
			out = append(out, e)
			continue
		}
		hit := false
		for i, target := range targets {
			if target != "" && pathutil.Matches(e.Filename, target) {
				matched[i] = true
				hit = true
			}
		}
		if hit {
			out = append(out, e)
		}
	}
	for i, ok := range matched {
		if !ok {
			return nil, fmt.Errorf("extract %s: %w", names[i], ErrNoMatch)
		}
	}
	return out, nil
}

// targetName returns where e is written relative to the output directory.
func targetName(e *zpack.FileEntry, cfg *config) (string, error) {
	name := e.Filename
	if cfg.flatten {
		name = pathutil.Base(name)
	}
	if cfg.unsafe {
		if name == "" {
			return "", zpack.ErrIllegalFilename
		}
		return name, nil
	}
	if err := zpack.ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

func extractEntry(r *zpack.Reader, sink *fileSink, e *zpack.FileEntry, cfg *config) error {
	name, err := targetName(e, cfg)
	if err != nil {
		return err
	}
	w, err := sink.Writer(name)
	if err != nil {
		return err
	}
	if _, err := r.NewEntryReader(e).WriteTo(w); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}
	cfg.log().Debug("extracted file", "name", e.Filename, "path", name)
	return nil
}
