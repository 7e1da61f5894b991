package ops

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/zpack"
)

// Failure records an entry that did not verify.
type Failure struct {
	Name string
	Err  error
}

// TestReport is the outcome of Test.
type TestReport struct {
	// Checked is the number of entries decompressed.
	Checked int
	// Corrupt is the number of entries that failed.
	Corrupt int
	// Failures lists the failed entries in archive order.
	Failures []Failure
}

// OK reports whether every entry verified.
func (r TestReport) OK() bool { return r.Corrupt == 0 }

// Test decompresses every entry of archive and checks its size and hash.
// A bad entry does not stop the run; it is reported in the result. The
// returned error is reserved for failures to read the archive at all.
//
// Entries are spread across workers, each with its own Reader.
func Test(ctx context.Context, archive string, opts ...Option) (TestReport, error) {
	cfg := newConfig(opts)
	r, err := openArchive(ctx, archive, &cfg)
	if err != nil {
		return TestReport{}, err
	}
	entries := r.Entries()
	_ = r.Close() //nolint:errcheck // read-only handle

	var total uint64
	inSize, outSize := zpack.DefaultStreamBufferSize, zpack.DefaultStreamBufferSize
	for i := range entries {
		total += entries[i].UncompSize
		if sizes, err := zpack.StreamBufferSizes(entries[i].Method); err == nil {
			inSize = max(inSize, sizes.DecompressIn)
			outSize = max(outSize, sizes.DecompressOut)
		}
	}

	results := make([]error, len(entries))
	workers := cfg.workerCount(len(entries))
	var filesDone atomic.Int64
	var bytesDone atomic.Uint64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := range workers {
		g.Go(func() error {
			wr, err := openArchive(ctx, archive, &cfg)
			if err != nil {
				return err
			}
			defer wr.Close()

			in := make([]byte, inSize)
			out := make([]byte, outSize)
			for i := w; i < len(entries); i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				e := &entries[i]
				results[i] = verifyEntry(wr, e, in, out)
				if results[i] != nil {
					cfg.log().Warn("entry failed verification", "name", e.Filename, "error", results[i])
				}
				cfg.emit(ProgressEvent{
					Stage:      StageTesting,
					Path:       e.Filename,
					BytesDone:  bytesDone.Add(e.UncompSize),
					BytesTotal: total,
					FilesDone:  int(filesDone.Add(1)),
					FilesTotal: len(entries),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TestReport{}, err
	}

	report := TestReport{Checked: len(entries)}
	for i, err := range results {
		e := &entries[i]
		if err != nil {
			report.Corrupt++
			report.Failures = append(report.Failures, Failure{Name: e.Filename, Err: err})
			if cfg.recorder != nil {
				cfg.recorder.Corrupt()
			}
			continue
		}
		if cfg.recorder != nil {
			cfg.recorder.FileRead(e.UncompSize, e.CompSize)
		}
	}
	return report, nil
}

func verifyEntry(r *zpack.Reader, e *zpack.FileEntry, in, out []byte) error {
	n, err := r.NewEntryReaderBuffer(e, in, out).WriteTo(io.Discard)
	if err != nil {
		return err
	}
	if uint64(n) != e.UncompSize { //nolint:gosec // n is non-negative
		return fmt.Errorf("%w: %d of %d bytes", zpack.ErrFileIncomplete, n, e.UncompSize)
	}
	return nil
}
