// Package ops implements whole-archive operations on top of the zpack
// Reader and Writer: creating and extending archives, renaming and
// removing entries, listing, verifying and extracting.
//
// Operations that change an existing archive build the new archive in a
// temporary file beside it and rename it into place only after it is
// complete, so a failure leaves the original untouched.
package ops

import (
	"log/slog"
	"runtime"

	"github.com/meigma/zpack"
)

// Recorder receives counts of archive activity. *metrics.Metrics from the
// zpack command implements it.
type Recorder interface {
	FileWritten(method string, uncomp, comp uint64)
	FileRead(uncomp, comp uint64)
	Corrupt()
}

// Option configures an operation.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	progress  ProgressFunc
	recorder  Recorder
	compress  zpack.CompressOptions
	exclude   []string
	workers   int
	output    string
	flatten   bool
	unsafe    bool
	zpackOpts []zpack.Option
}

func newConfig(opts []Option) config {
	cfg := config{compress: zpack.DefaultCompressOptions}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *config) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *config) emit(ev ProgressEvent) {
	if c.progress != nil {
		c.progress(ev)
	}
}

func (c *config) workerCount(n int) int {
	w := c.workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return max(1, min(w, n))
}

func (c *config) readerOptions() []zpack.Option {
	opts := make([]zpack.Option, 0, len(c.zpackOpts)+1)
	if c.logger != nil {
		opts = append(opts, zpack.WithLogger(c.logger))
	}
	return append(opts, c.zpackOpts...)
}

// WithLogger sets the logger for operation messages and the archive
// handles the operation opens.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithRecorder sets where activity counts are reported.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

// WithCompression sets the codec and level for newly added files.
// The default is zstd at level 3.
func WithCompression(opts zpack.CompressOptions) Option {
	return func(c *config) {
		c.compress = opts
	}
}

// WithExclude adds path.Match patterns. When adding, matching files and
// directories are skipped during discovery. When extracting, matching
// entries are not written.
func WithExclude(patterns ...string) Option {
	return func(c *config) {
		c.exclude = append(c.exclude, patterns...)
	}
}

// WithWorkers sets how many entries Test verifies concurrently.
// Zero or less uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithOutput sets the extraction directory. The default is the current
// directory.
func WithOutput(dir string) Option {
	return func(c *config) {
		c.output = dir
	}
}

// WithFlatten extracts every entry by its base name, discarding
// directories.
func WithFlatten(flatten bool) Option {
	return func(c *config) {
		c.flatten = flatten
	}
}

// WithUnsafe lets extraction write entries whose names climb out of the
// output directory with ".." segments. Absolute names are still placed
// below the output directory.
func WithUnsafe(unsafe bool) Option {
	return func(c *config) {
		c.unsafe = unsafe
	}
}

// WithArchiveOptions passes options to every Reader and Writer the
// operation opens.
func WithArchiveOptions(opts ...zpack.Option) Option {
	return func(c *config) {
		c.zpackOpts = append(c.zpackOpts, opts...)
	}
}
