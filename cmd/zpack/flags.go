package main

import (
	"github.com/spf13/pflag"

	"github.com/meigma/zpack"
)

// methodFlag is a pflag.Value holding "method[:level]".
type methodFlag zpack.CompressOptions

var _ pflag.Value = (*methodFlag)(nil)

func (mf *methodFlag) String() string { return zpack.CompressOptions(*mf).String() }

// Set implements pflag.Value.
func (mf *methodFlag) Set(v string) error {
	opts, err := zpack.ParseCompressOptions(v)
	if err != nil {
		return err
	}
	*mf = methodFlag(opts)
	return nil
}

// Type implements pflag.Value.
func (*methodFlag) Type() string { return "method[:level]" }

// Value returns the options held by this flag.
func (mf methodFlag) Value() zpack.CompressOptions { return zpack.CompressOptions(mf) }

// options holds the parsed command line.
type options struct {
	method      methodFlag
	output      string
	exclude     []string
	help        bool
	unsafe      bool
	configFile  string
	metricsFile string
	verbose     bool
	workers     int

	flags *pflag.FlagSet
}

func newFlagSet(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("zpack", pflag.ContinueOnError)
	fs.SortFlags = false
	o.method = methodFlag(zpack.DefaultCompressOptions)
	fs.VarP(&o.method, "method", "m", "compression method and optional level: zstd, lz4 or store")
	fs.StringVarP(&o.output, "output", "o", "", "output directory for extraction")
	fs.StringArrayVarP(&o.exclude, "exclude", "x", nil, "exclude files matching `pattern` (repeatable)")
	fs.BoolVarP(&o.help, "help", "h", false, "show this help message")
	fs.BoolVar(&o.unsafe, "unsafe", false, "allow files to be extracted outside of the output directory")
	fs.StringVar(&o.configFile, "config", "", "YAML `file` with default method, level, exclude and output")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to `file` when done")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log every file")
	fs.IntVarP(&o.workers, "workers", "j", 0, "entries verified concurrently by t (0 uses all CPUs)")
	o.flags = fs
	return fs
}
